package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeTOML(t, `
[camera]
device = 2
fourcc = "MJPG"

[pipeline]
wait_timeout = "2s"
pacing = false

[output]
path = "cap.h264"
`)

	o := Defaults()
	o.Config = path
	if err := LoadConfig(&o, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"camera.device", o.CameraDevice, 2},
		{"camera.fourcc", o.CameraFourCC, "MJPG"},
		{"pipeline.wait_timeout", o.PipelineWaitTimeout, "2s"},
		{"pipeline.pacing", o.PipelinePacing, false},
		{"output.path", o.OutputPath, "cap.h264"},
		{"camera.width untouched", o.CameraWidth, 640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("V4L2CAST_CAMERA_DEVICE", "4")
	t.Setenv("V4L2CAST_OUTPUT_PATH", "/tmp/out.h264")
	t.Setenv("V4L2CAST_RESTART_ENABLED", "false")
	t.Setenv("V4L2CAST_PIPELINE_MAX_FRAMES", "not-a-number")

	o := Defaults()
	if err := LoadConfig(&o, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"camera.device", o.CameraDevice, 4},
		{"output.path", o.OutputPath, "/tmp/out.h264"},
		{"restart.enabled", o.RestartEnabled, false},
		{"unparsable int keeps default", o.PipelineMaxFrames, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeTOML(t, `
[camera]
device = 1
fps = 25

[output]
path = "file.h264"
`)
	t.Setenv("V4L2CAST_CAMERA_DEVICE", "3")

	o := Defaults()
	o.Config = path
	if err := LoadConfig(&o, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if o.CameraDevice != 3 {
		t.Errorf("CameraDevice = %d, want env value 3", o.CameraDevice)
	}
	if o.CameraFPS != 25 || o.OutputPath != "file.h264" {
		t.Errorf("file values lost: fps %d path %q", o.CameraFPS, o.OutputPath)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"camera": map[string]any{
			"device": int64(2),
		},
		"pipeline": map[string]any{
			"wait_timeout": "1s",
		},
		"output": "not a table",
	}

	tests := []struct {
		path string
		want any
	}{
		{"camera.device", int64(2)},
		{"pipeline.wait_timeout", "1s"},
		{"camera.fps", nil},
		{"encoder.device", nil},
		{"output.path", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getNestedValue(data, tt.path); got != tt.want {
				t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSetFieldValue(t *testing.T) {
	tests := []struct {
		field string
		value any
		want  any
	}{
		{"CameraDevice", int64(5), 5},
		{"CameraFourCC", "NV12", "NV12"},
		{"PipelinePacing", false, false},
		{"PipelineWaitTimeout", int64(3), "3"},
		{"CameraFPS", "thirty", 15},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			o := Defaults()
			v := reflect.ValueOf(&o).Elem().FieldByName(tt.field)
			setFieldValue(v, tt.value)
			if got := v.Interface(); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	tests := []struct {
		field string
		value string
		want  any
	}{
		{"EncoderDevice", "12", 12},
		{"OutputSink", "discard", "discard"},
		{"OutputInjectParameterSets", "false", false},
		{"RestartBurst", "many", 3},
		{"FeaturesHotplug", "maybe", true},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			o := Defaults()
			v := reflect.ValueOf(&o).Elem().FieldByName(tt.field)
			setFieldValueFromString(v, tt.value)
			if got := v.Interface(); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestFlagName(t *testing.T) {
	typ := reflect.TypeOf(Options{})
	tests := []struct {
		field string
		want  string
	}{
		{"CameraDevice", "camera-device"},
		{"OutputPath", "output"},
		{"PipelineWaitTimeout", "wait-timeout"},
		{"Config", "config"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := typ.FieldByName(tt.field)
			if !ok {
				t.Fatalf("no field %s", tt.field)
			}
			if got := flagName(f); got != tt.want {
				t.Errorf("flagName(%s) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	o := Defaults()
	o.Config = filepath.Join(t.TempDir(), "missing.toml")
	if err := LoadConfig(&o, nil); err != nil {
		t.Fatalf("LoadConfig should ignore a missing file: %v", err)
	}
	want := Defaults()
	want.Config = o.Config
	if o != want {
		t.Errorf("options changed without a file: %+v", o)
	}
}

func TestLoadLoggingModuleLevels(t *testing.T) {
	path := writeTOML(t, `
[logging]
level = "info"
format = "text"
capture = "debug"
supervisor = "warn"
api = "error"
`)

	o := Defaults()
	o.Config = path
	if err := LoadConfig(&o, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	got := o.LoggingConfig()
	want := map[string]string{"capture": "debug", "supervisor": "warn", "api": "error"}
	if got.Level != "info" || got.Format != "text" {
		t.Errorf("global = %q/%q, want info/text", got.Level, got.Format)
	}
	if !reflect.DeepEqual(got.Modules, want) {
		t.Errorf("Modules = %v, want %v", got.Modules, want)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeTOML(t, "[camera\ndevice = \n")
	o := Defaults()
	o.Config = path
	if err := LoadConfig(&o, nil); err == nil {
		t.Fatal("LoadConfig should fail for invalid TOML")
	}
}
