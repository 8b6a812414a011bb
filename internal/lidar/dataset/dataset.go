// Package dataset defines the data source the segmentation pipeline reads
// from and implements it for the KITTI odometry layout.
//
// A Dataset hands out raw scans, LiDAR poses, camera calibration and the
// per-image instance masks produced by the external segmentation model.
// Ground-truth labels come through the separate GroundTruth capability so
// that unlabeled sequences can still be segmented.
package dataset

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
	"github.com/banshee-data/mapseg/internal/lidar/masks"
)

// ErrUnknownCamera is returned for a camera name the dataset does not have.
var ErrUnknownCamera = errors.New("unknown camera")

// Camera is one calibrated camera of the rig.
type Camera struct {
	Name string
	// K is the 3×3 row-major intrinsic matrix.
	K [9]float64
	// Extrinsics maps LiDAR coordinates into this camera's frame (T_cam_velo).
	Extrinsics l2frames.Pose
}

// Dataset is the capability that drives a segmentation window: given frame
// indices and a camera name it yields scans, poses and instance masks.
type Dataset interface {
	// Len returns the number of frames in the sequence.
	Len() int
	// PointCloud returns the scan of a frame in the LiDAR frame.
	PointCloud(index int) ([]l2frames.Point, error)
	// LidarPose returns the LiDAR-to-world transform of a frame.
	LidarPose(index int) (l2frames.Pose, error)
	// Camera returns the calibration of a named camera.
	Camera(name string) (Camera, error)
	// ImageInstances returns the instance masks of one camera image.
	ImageInstances(camera string, index int) ([]masks.Mask, error)
}

// GroundTruth yields per-point labels aligned with PointCloud.
type GroundTruth interface {
	Labels(index int) (semantic, instance []int, err error)
}

// LoadScans reads frames [start, end) with their poses.
func LoadScans(ds Dataset, start, end int) ([]l2frames.Scan, error) {
	if start < 0 || end > ds.Len() || end <= start {
		return nil, fmt.Errorf("window [%d, %d) outside sequence of %d frames", start, end, ds.Len())
	}
	scans := make([]l2frames.Scan, 0, end-start)
	for i := start; i < end; i++ {
		pts, err := ds.PointCloud(i)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		pose, err := ds.LidarPose(i)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		scans = append(scans, l2frames.Scan{Index: i, Points: pts, Pose: pose})
	}
	return scans, nil
}

// LoadWindowLabels concatenates the labels of frames [start, end) in the
// same order AssembleMap concatenates their points.
func LoadWindowLabels(gt GroundTruth, start, end int) (semantic, instance []int, err error) {
	for i := start; i < end; i++ {
		sem, inst, err := gt.Labels(i)
		if err != nil {
			return nil, nil, fmt.Errorf("labels of frame %d: %w", i, err)
		}
		semantic = append(semantic, sem...)
		instance = append(instance, inst...)
	}
	return semantic, instance, nil
}

// CameraPose returns the camera-to-world transform at a frame:
// T_lidar · T_cam_velo⁻¹.
func CameraPose(ds Dataset, camera string, index int) (l2frames.Pose, error) {
	cam, err := ds.Camera(camera)
	if err != nil {
		return l2frames.Pose{}, err
	}
	lidar, err := ds.LidarPose(index)
	if err != nil {
		return l2frames.Pose{}, err
	}
	veloFromCam, err := cam.Extrinsics.Inverse()
	if err != nil {
		return l2frames.Pose{}, fmt.Errorf("camera %s extrinsics: %w", camera, err)
	}
	return lidar.Mul(veloFromCam), nil
}
