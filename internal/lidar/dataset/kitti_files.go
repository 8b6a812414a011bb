package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/mapseg/internal/lidar/l2frames"
)

// KITTI binary layouts
const (
	velodyneRecordSize = 16 // x, y, z, reflectance as float32
	labelRecordSize    = 4  // uint32: semantic in low 16 bits, instance in high 16
)

// ReadVelodyne decodes a KITTI velodyne .bin scan. Reflectance is dropped.
func ReadVelodyne(r io.Reader) ([]l2frames.Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read velodyne scan: %w", err)
	}
	if len(data)%velodyneRecordSize != 0 {
		return nil, fmt.Errorf("velodyne scan of %d bytes is not a multiple of %d", len(data), velodyneRecordSize)
	}

	pts := make([]l2frames.Point, len(data)/velodyneRecordSize)
	for i := range pts {
		rec := data[i*velodyneRecordSize:]
		pts[i] = l2frames.Point{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[0:4]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))),
		}
	}
	return pts, nil
}

// ReadLabels decodes a SemanticKITTI .label file.
func ReadLabels(r io.Reader) (semantic, instance []int, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read labels: %w", err)
	}
	if len(data)%labelRecordSize != 0 {
		return nil, nil, fmt.Errorf("label file of %d bytes is not a multiple of %d", len(data), labelRecordSize)
	}

	n := len(data) / labelRecordSize
	semantic = make([]int, n)
	instance = make([]int, n)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint32(data[i*labelRecordSize:])
		semantic[i] = int(v & 0xFFFF)
		instance[i] = int(v >> 16)
	}
	return semantic, instance, nil
}

// ReadPoses parses a poses file: one row-major 3×4 matrix per line.
func ReadPoses(r io.Reader) ([]l2frames.Pose, error) {
	var poses []l2frames.Pose
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		values, err := parseFloats(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("poses line %d: %w", line, err)
		}
		pose, err := l2frames.PoseFromRows(values)
		if err != nil {
			return nil, fmt.Errorf("poses line %d: %w", line, err)
		}
		poses = append(poses, pose)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read poses: %w", err)
	}
	return poses, nil
}

// Calibration holds the rectified projection matrices P0..P3 and the
// LiDAR-to-cam0 transform Tr of a KITTI sequence.
type Calibration struct {
	P  [4][12]float64
	Tr l2frames.Pose
}

// ReadCalibration parses a calib.txt file ("P0: v1 ... v12", "Tr: ...").
func ReadCalibration(r io.Reader) (Calibration, error) {
	var calib Calibration
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		values, err := parseFloats(strings.Fields(rest))
		if err != nil {
			return Calibration{}, fmt.Errorf("calib %s: %w", key, err)
		}
		if len(values) != 12 {
			return Calibration{}, fmt.Errorf("calib %s: want 12 values, got %d", key, len(values))
		}

		switch key {
		case "P0", "P1", "P2", "P3":
			copy(calib.P[key[1]-'0'][:], values)
		case "Tr":
			calib.Tr, _ = l2frames.PoseFromRows(values)
		default:
			continue
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return Calibration{}, fmt.Errorf("read calib: %w", err)
	}
	for _, key := range []string{"P0", "P1", "P2", "P3", "Tr"} {
		if !seen[key] {
			return Calibration{}, fmt.Errorf("calib: missing %s", key)
		}
	}
	return calib, nil
}

// Camera derives the calibration of camera index i (0..3). The rectified
// cameras differ from cam0 only by an x translation of P[0,3]/P[0,0].
func (c Calibration) Camera(i int) Camera {
	p := c.P[i]
	cam := Camera{Name: fmt.Sprintf("cam%d", i)}
	cam.K = [9]float64{
		p[0], p[1], p[2],
		p[4], p[5], p[6],
		p[8], p[9], p[10],
	}
	shift := l2frames.IdentityPose()
	shift.T[3] = p[3] / p[0]
	cam.Extrinsics = shift.Mul(c.Tr)
	return cam
}

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return parse(bufio.NewReader(f))
}
