package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// ValidCameraNames lists the camera identifiers of the KITTI odometry rig.
var ValidCameraNames = []string{"cam0", "cam1", "cam2", "cam3"}

// TuningConfig holds every knob of the segmentation pipeline.
// Fields are pointers so partial files only override what they name;
// the Get* accessors supply defaults for anything left nil.
type TuningConfig struct {
	// Window params
	WindowSize  *int    `json:"window_size,omitempty" yaml:"window_size,omitempty"`
	ImageOffset *int    `json:"image_offset,omitempty" yaml:"image_offset,omitempty"`
	CamName     *string `json:"cam_name,omitempty" yaml:"cam_name,omitempty"`

	// Preprocessing params
	CubeRadius          *float64 `json:"cube_radius,omitempty" yaml:"cube_radius,omitempty"`
	NbNeighbors         *int     `json:"nb_neighbors,omitempty" yaml:"nb_neighbors,omitempty"`
	StdRatio            *float64 `json:"std_ratio,omitempty" yaml:"std_ratio,omitempty"`
	VoxelSize           *float64 `json:"voxel_size,omitempty" yaml:"voxel_size,omitempty"`
	VisibilityTolerance *float64 `json:"visibility_tolerance,omitempty" yaml:"visibility_tolerance,omitempty"`

	// Mask reduction params
	UnionThreshold *float64 `json:"union_threshold,omitempty" yaml:"union_threshold,omitempty"`
	MaskThreshold  *float64 `json:"mask_threshold,omitempty" yaml:"mask_threshold,omitempty"`

	// Affinity params
	ProximityThreshold *float64 `json:"proximity_threshold,omitempty" yaml:"proximity_threshold,omitempty"`
	Alpha              *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
	Beta               *float64 `json:"beta,omitempty" yaml:"beta,omitempty"`

	// Normalized cut params
	NCutThreshold    *float64 `json:"ncut_threshold,omitempty" yaml:"ncut_threshold,omitempty"`
	EigenvaluesCount *int     `json:"eigenvalues_count,omitempty" yaml:"eigenvalues_count,omitempty"`
	NumCuts          *int     `json:"num_cuts,omitempty" yaml:"num_cuts,omitempty"`

	// Evaluation params
	InstanceThreshold *float64 `json:"instance_threshold,omitempty" yaml:"instance_threshold,omitempty"`
	IoUThreshold      *float64 `json:"iou_threshold,omitempty" yaml:"iou_threshold,omitempty"`

	// Baseline params (optional)
	DBSCANEps    *float64 `json:"dbscan_eps,omitempty" yaml:"dbscan_eps,omitempty"`
	DBSCANMinPts *int     `json:"dbscan_min_pts,omitempty" yaml:"dbscan_min_pts,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		WindowSize:          ptrInt(empty.GetWindowSize()),
		ImageOffset:         ptrInt(empty.GetImageOffset()),
		CamName:             ptrString(empty.GetCamName()),
		CubeRadius:          ptrFloat64(empty.GetCubeRadius()),
		NbNeighbors:         ptrInt(empty.GetNbNeighbors()),
		StdRatio:            ptrFloat64(empty.GetStdRatio()),
		VoxelSize:           ptrFloat64(empty.GetVoxelSize()),
		VisibilityTolerance: ptrFloat64(empty.GetVisibilityTolerance()),
		UnionThreshold:      ptrFloat64(empty.GetUnionThreshold()),
		MaskThreshold:       ptrFloat64(empty.GetMaskThreshold()),
		ProximityThreshold:  ptrFloat64(empty.GetProximityThreshold()),
		Alpha:               ptrFloat64(empty.GetAlpha()),
		Beta:                ptrFloat64(empty.GetBeta()),
		NCutThreshold:       ptrFloat64(empty.GetNCutThreshold()),
		EigenvaluesCount:    ptrInt(empty.GetEigenvaluesCount()),
		NumCuts:             ptrInt(empty.GetNumCuts()),
		InstanceThreshold:   ptrFloat64(empty.GetInstanceThreshold()),
		IoUThreshold:        ptrFloat64(empty.GetIoUThreshold()),
		DBSCANEps:           ptrFloat64(empty.GetDBSCANEps()),
		DBSCANMinPts:        ptrInt(empty.GetDBSCANMinPts()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON or YAML file.
// The file is validated to ensure it has a known extension and is under the max file size.
// Fields omitted from the file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/lidar/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
// Only fields that are set are checked; defaults are valid by construction.
func (c *TuningConfig) Validate() error {
	if c.WindowSize != nil && *c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", *c.WindowSize)
	}
	if c.ImageOffset != nil && *c.ImageOffset < 0 {
		return fmt.Errorf("image_offset must be non-negative, got %d", *c.ImageOffset)
	}
	if c.CamName != nil && !isValidCameraName(*c.CamName) {
		return fmt.Errorf("cam_name must be one of %v, got %q", ValidCameraNames, *c.CamName)
	}

	positives := []struct {
		name  string
		value *float64
	}{
		{"cube_radius", c.CubeRadius},
		{"std_ratio", c.StdRatio},
		{"voxel_size", c.VoxelSize},
		{"union_threshold", c.UnionThreshold},
		{"mask_threshold", c.MaskThreshold},
		{"proximity_threshold", c.ProximityThreshold},
		{"iou_threshold", c.IoUThreshold},
		{"dbscan_eps", c.DBSCANEps},
	}
	for _, p := range positives {
		if p.value != nil && *p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.value)
		}
	}

	nonNegatives := []struct {
		name  string
		value *float64
	}{
		{"visibility_tolerance", c.VisibilityTolerance},
		{"alpha", c.Alpha},
		{"beta", c.Beta},
		{"ncut_threshold", c.NCutThreshold},
		{"instance_threshold", c.InstanceThreshold},
	}
	for _, p := range nonNegatives {
		if p.value != nil && *p.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.value)
		}
	}

	if c.NbNeighbors != nil && *c.NbNeighbors <= 0 {
		return fmt.Errorf("nb_neighbors must be positive, got %d", *c.NbNeighbors)
	}
	if c.EigenvaluesCount != nil && *c.EigenvaluesCount < 2 {
		return fmt.Errorf("eigenvalues_count must be at least 2, got %d", *c.EigenvaluesCount)
	}
	if c.NumCuts != nil && *c.NumCuts < 1 {
		return fmt.Errorf("num_cuts must be at least 1, got %d", *c.NumCuts)
	}
	if c.DBSCANMinPts != nil && *c.DBSCANMinPts <= 0 {
		return fmt.Errorf("dbscan_min_pts must be positive, got %d", *c.DBSCANMinPts)
	}
	if c.InstanceThreshold != nil && *c.InstanceThreshold > 100 {
		return fmt.Errorf("instance_threshold is a percentage, got %f", *c.InstanceThreshold)
	}
	if c.IoUThreshold != nil && *c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be at most 1, got %f", *c.IoUThreshold)
	}

	return nil
}

// ValidateWindow checks a scan window [start, end) and its image offset.
// The first image of the covering sequence is start-offset, so the offset
// may not reach past the first scan of the sequence.
func ValidateWindow(start, end, offset int) error {
	if start < 0 {
		return fmt.Errorf("start_index must be non-negative, got %d", start)
	}
	if end <= start {
		return fmt.Errorf("end_index (%d) has to be greater than start_index (%d)", end, start)
	}
	if offset < 0 {
		return fmt.Errorf("image_offset must be non-negative, got %d", offset)
	}
	if offset > start {
		return fmt.Errorf("image_offset (%d) has to be less than or equal to start_index (%d)", offset, start)
	}
	return nil
}

func isValidCameraName(name string) bool {
	for _, valid := range ValidCameraNames {
		if name == valid {
			return true
		}
	}
	return false
}

// GetWindowSize returns the number of scans assembled per map window.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 4
	}
	return *c.WindowSize
}

// GetImageOffset returns how many images before the first scan are projected.
func (c *TuningConfig) GetImageOffset() int {
	if c.ImageOffset == nil {
		return 0
	}
	return *c.ImageOffset
}

// GetCamName returns the camera whose masks label the map.
func (c *TuningConfig) GetCamName() string {
	if c.CamName == nil {
		return "cam2"
	}
	return *c.CamName
}

// GetCubeRadius returns the depth limit (meters) of the in-cube filter.
func (c *TuningConfig) GetCubeRadius() float64 {
	if c.CubeRadius == nil {
		return 18
	}
	return *c.CubeRadius
}

// GetNbNeighbors returns the neighbour count of the statistical outlier filter.
func (c *TuningConfig) GetNbNeighbors() int {
	if c.NbNeighbors == nil {
		return 25
	}
	return *c.NbNeighbors
}

// GetStdRatio returns the standard deviation multiplier of the outlier filter.
func (c *TuningConfig) GetStdRatio() float64 {
	if c.StdRatio == nil {
		return 5.0
	}
	return *c.StdRatio
}

// GetVoxelSize returns the voxel edge length (meters) used for downsampling.
func (c *TuningConfig) GetVoxelSize() float64 {
	if c.VoxelSize == nil {
		return 0.25
	}
	return *c.VoxelSize
}

// GetVisibilityTolerance returns the z-buffer depth tolerance in meters.
// Zero disables occlusion culling.
func (c *TuningConfig) GetVisibilityTolerance() float64 {
	if c.VisibilityTolerance == nil {
		return 0.5
	}
	return *c.VisibilityTolerance
}

// GetUnionThreshold returns the bbox intersection-over-union merge threshold.
func (c *TuningConfig) GetUnionThreshold() float64 {
	if c.UnionThreshold == nil {
		return 0.5
	}
	return *c.UnionThreshold
}

// GetMaskThreshold returns the pixel intersection-over-mask merge threshold.
func (c *TuningConfig) GetMaskThreshold() float64 {
	if c.MaskThreshold == nil {
		return 0.6
	}
	return *c.MaskThreshold
}

// GetProximityThreshold returns the max distance (meters) for two points to share an edge.
func (c *TuningConfig) GetProximityThreshold() float64 {
	if c.ProximityThreshold == nil {
		return 3
	}
	return *c.ProximityThreshold
}

// GetAlpha returns the physical distance decay.
func (c *TuningConfig) GetAlpha() float64 {
	if c.Alpha == nil {
		return 5
	}
	return *c.Alpha
}

// GetBeta returns the instance disagreement decay.
func (c *TuningConfig) GetBeta() float64 {
	if c.Beta == nil {
		return 5
	}
	return *c.Beta
}

// GetNCutThreshold returns the normalized cut stopping threshold.
func (c *TuningConfig) GetNCutThreshold() float64 {
	if c.NCutThreshold == nil {
		return 0.03
	}
	return *c.NCutThreshold
}

// GetEigenvaluesCount returns how many eigenpairs near zero are retained per cut.
func (c *TuningConfig) GetEigenvaluesCount() int {
	if c.EigenvaluesCount == nil {
		return 2
	}
	return *c.EigenvaluesCount
}

// GetNumCuts returns the number of candidate thresholds per bipartition.
func (c *TuningConfig) GetNumCuts() int {
	if c.NumCuts == nil {
		return 10
	}
	return *c.NumCuts
}

// GetInstanceThreshold returns the percentage of a cluster's voxels that
// must carry a ground truth instance for it to count as a prediction.
func (c *TuningConfig) GetInstanceThreshold() float64 {
	if c.InstanceThreshold == nil {
		return 50
	}
	return *c.InstanceThreshold
}

// GetIoUThreshold returns the IoU needed for a predicted instance to match.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.5
	}
	return *c.IoUThreshold
}

// GetDBSCANEps returns the neighbourhood radius of the DBSCAN baseline.
func (c *TuningConfig) GetDBSCANEps() float64 {
	if c.DBSCANEps == nil {
		return 0.6
	}
	return *c.DBSCANEps
}

// GetDBSCANMinPts returns the core point threshold of the DBSCAN baseline.
func (c *TuningConfig) GetDBSCANMinPts() int {
	if c.DBSCANMinPts == nil {
		return 5
	}
	return *c.DBSCANMinPts
}
