// Package l2frames owns Layer 2 (Frames) of the segmentation data model.
//
// Responsibilities: rigid 4×4 poses, coordinate transforms between the
// LiDAR, camera and world frames, and assembling a window of scans into a
// single world-frame map.
// Key types: Point, Pose.
//
// Dependency rule: L2 never depends on L4+.
package l2frames
