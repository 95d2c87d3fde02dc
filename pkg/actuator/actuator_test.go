package actuator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestAttribute_Endpoint(t *testing.T) {
	tests := []struct {
		attr     Attribute
		expected string
	}{
		{Attribute{IP: "192.168.1.10"}, "192.168.1.10:2334"},
		{Attribute{IP: "127.0.0.1", Port: 40001}, "127.0.0.1:40001"},
	}

	for _, tt := range tests {
		got := tt.attr.Endpoint(DefaultPort)
		if got != tt.expected {
			t.Errorf("Endpoint() = %s, want %s", got, tt.expected)
		}
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err      error
		expected ErrorCode
	}{
		{nil, ErrorNone},
		{ErrStepTooLarge, ErrorStep},
		{fmt.Errorf("replay: %w", ErrReadFile), ErrorReadFile},
		{&AxisError{Axis: 2, Code: ErrorEncoder}, ErrorEncoder},
		{errors.New("boom"), ErrorUnknown},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.expected {
			t.Errorf("CodeOf(%v) = %s, want %s", tt.err, got, tt.expected)
		}
	}
}

func TestErrorCode_Values(t *testing.T) {
	// Codes are part of the public surface and must not drift.
	if ErrorCommunication != 0x001 || ErrorUnknown != 0x005 {
		t.Error("per-axis error codes changed")
	}
	if ErrorActuator != 0x100 || ErrorStep != 0x103 {
		t.Error("group error codes changed")
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	attrs := []Attribute{
		{IP: "10.0.0.2", MAC: "AA:BB:CC:00:00:01", Serial: "SN-1"},
		{IP: "10.0.0.3", Port: 2400, MAC: "AA:BB:CC:00:00:02", Serial: "SN-2", Name: "elbow", Identity: 1},
	}

	for _, name := range []string{"config.json", "group.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := SaveManifest(path, ManifestFromAttributes(attrs)); err != nil {
			t.Fatalf("SaveManifest(%s): %v", name, err)
		}
		if !ManifestExists(path) {
			t.Fatalf("ManifestExists(%s) = false", name)
		}

		m, err := LoadManifest(path)
		if err != nil {
			t.Fatalf("LoadManifest(%s): %v", name, err)
		}
		got, err := StaticResolver{}.Resolve(context.Background(), m)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(got) != len(attrs) {
			t.Fatalf("%s: resolved %d axes, want %d", name, len(got), len(attrs))
		}
		for i := range attrs {
			if got[i].IP != attrs[i].IP || got[i].Port != attrs[i].Port || got[i].Serial != attrs[i].Serial {
				t.Errorf("%s: axis %d = %+v, want %+v", name, i, got[i], attrs[i])
			}
			if got[i].Identity != attrs[i].Identity {
				t.Errorf("%s: axis %d identity = %d, want %d", name, i, got[i].Identity, attrs[i].Identity)
			}
			if got[i].ID != i {
				t.Errorf("%s: axis %d has ID %d", name, i, got[i].ID)
			}
		}
	}
}

func TestStaticResolver_MissingIP(t *testing.T) {
	_, err := StaticResolver{}.Resolve(context.Background(), Manifest{{Serial: "SN-1"}})
	if err == nil {
		t.Fatal("Resolve should fail for an entry without ip")
	}
}

func TestResolveBySerialAndMAC(t *testing.T) {
	known := []Attribute{
		{IP: "10.0.0.2", MAC: "aa:bb:cc:00:00:01", Serial: "SN-1"},
		{IP: "10.0.0.3", MAC: "aa:bb:cc:00:00:02", Serial: "SN-2"},
		{IP: "10.0.0.4", MAC: "aa:bb:cc:00:00:03", Serial: "SN-3"},
	}

	got, err := ResolveBySerial(known, []string{"SN-3", "SN-1"})
	if err != nil {
		t.Fatalf("ResolveBySerial: %v", err)
	}
	if got[0].IP != "10.0.0.4" || got[1].IP != "10.0.0.2" {
		t.Errorf("ResolveBySerial order = %v, %v", got[0].IP, got[1].IP)
	}

	got, err = ResolveByMAC(known, []string{"AA:BB:CC:00:00:02"})
	if err != nil {
		t.Fatalf("ResolveByMAC: %v", err)
	}
	if got[0].Serial != "SN-2" {
		t.Errorf("ResolveByMAC = %s, want SN-2", got[0].Serial)
	}

	if _, err := ResolveBySerial(known, []string{"SN-9"}); err == nil {
		t.Error("ResolveBySerial should fail for an unknown serial")
	}
}

func TestCVP_Samples(t *testing.T) {
	c := NewCVP(2)
	c.Set(1, Sample{Position: 10, Velocity: 2, Current: 0.5})

	s := c.Samples()
	if s[1].Position != 10 || s[1].Velocity != 2 || s[1].Current != 0.5 {
		t.Errorf("Samples()[1] = %+v", s[1])
	}

	clone := c.Clone()
	clone.Position[1] = 99
	if c.Position[1] != 10 {
		t.Error("Clone shares storage with the original")
	}
}
