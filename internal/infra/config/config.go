package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	HTTPClient  HTTPClientConfig  `yaml:"http_client"`
	Limiter     LimiterConfig     `yaml:"limiter"`
	Rembg       RembgConfig       `yaml:"rembg"`
	ShapeGen    ShapeGenConfig    `yaml:"shape_gen"`
	TexGen      TexGenConfig      `yaml:"tex_gen"`
	TextToImage TextToImageConfig `yaml:"text_to_image"`
	Image       ImageConfig       `yaml:"image"`
	Output      OutputConfig      `yaml:"output"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPClientConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
}

type LimiterConfig struct {
	MaxConcurrent int     `yaml:"max_concurrent"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type RembgConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ShapeGenConfig carries the fixed per-deployment sampler constants. They are
// deliberately not per-request: identical inputs must produce identical meshes.
type ShapeGenConfig struct {
	BaseURL          string `yaml:"base_url"`
	InferenceSteps   int    `yaml:"inference_steps"`
	OctreeResolution int    `yaml:"octree_resolution"`
	NumChunks        int    `yaml:"num_chunks"`
	Seed             int64  `yaml:"seed"`
	ReleaseAfterRun  bool   `yaml:"release_after_run"`
}

type TexGenConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

type TextToImageConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type ImageConfig struct {
	MaxDimension  int  `yaml:"max_dimension"`
	EnhanceColors bool `yaml:"enhance_colors"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnvOverrides(cfg), nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return applyEnvOverrides(cfg), nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTPClient: HTTPClientConfig{
			TimeoutSeconds: 300,
			MaxRetries:     2,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 1,
			RatePerSecond: 1,
		},
		Rembg: RembgConfig{
			BaseURL: "http://localhost:7000",
		},
		ShapeGen: ShapeGenConfig{
			BaseURL:          "http://localhost:7001",
			InferenceSteps:   100,
			OctreeResolution: 512,
			NumChunks:        30000,
			Seed:             12345,
			ReleaseAfterRun:  true,
		},
		TexGen: TexGenConfig{
			Enabled: true,
			BaseURL: "http://localhost:7002",
		},
		TextToImage: TextToImageConfig{
			Enabled: false,
			Model:   "gemini-2.0-flash-exp-image-generation",
		},
		Image: ImageConfig{
			MaxDimension:  2048,
			EnhanceColors: true,
		},
		Output: OutputConfig{
			Dir:           "/tmp/outputs",
			MaxFileSizeMB: 50,
		},
	}
}

func applyEnvOverrides(cfg *Config) *Config {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("REMBG_BASE_URL"); v != "" {
		cfg.Rembg.BaseURL = v
	}
	if v := os.Getenv("SHAPEGEN_BASE_URL"); v != "" {
		cfg.ShapeGen.BaseURL = v
	}
	if v := os.Getenv("TEXGEN_BASE_URL"); v != "" {
		cfg.TexGen.BaseURL = v
	}
	if v := os.Getenv("TEXGEN_ENABLED"); v != "" {
		cfg.TexGen.Enabled = parseBool(v, cfg.TexGen.Enabled)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.TextToImage.APIKey = v
		cfg.TextToImage.Enabled = true
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.TextToImage.Model = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("ENHANCE_COLORS"); v != "" {
		cfg.Image.EnhanceColors = parseBool(v, cfg.Image.EnhanceColors)
	}
	return cfg
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
