package params

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
)

func TestRequire(t *testing.T) {
	tests := []struct {
		name    string
		p       Map
		keys    []string
		wantMsg string
	}{
		{"all present", Map{"ip": "10.0.0.1", "port": 80}, []string{"ip", "port"}, ""},
		{"one missing", Map{"ip": "10.0.0.1"}, []string{"ip", "channels"}, "Missing required parameter: channels"},
		{"blank string is missing", Map{"message": "  "}, []string{"message"}, "Missing required parameter: message"},
		{"several missing", Map{}, []string{"serverPort", "serverIP"}, "Missing required parameters: serverIP, serverPort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Require(tt.p, tt.keys...)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Require() error = %v", err)
				}
				return
			}
			if !errors.Is(err, automation.ErrValidation) || err.Error() != tt.wantMsg {
				t.Errorf("Require() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestPort(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int
		wantErr bool
	}{
		{"yaml int", 4352, 4352, false},
		{"json float", float64(7), 7, false},
		{"string", "6454", 6454, false},
		{"negative", -1, 0, true},
		{"too large", 70000, 0, true},
		{"fraction", 1.5, 0, true},
		{"garbage", "http", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Port(Map{"port": tt.value}, "port")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Port() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err.Error() != "Port Number must be a number between 0 and 65535" {
				t.Errorf("message = %q", err.Error())
			}
			if got != tt.want {
				t.Errorf("Port() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMillis(t *testing.T) {
	d, err := Millis(Map{"interpolationTime": 250}, "interpolationTime", 0)
	if err != nil || d != 250*time.Millisecond {
		t.Errorf("Millis() = %v, %v", d, err)
	}
	d, err = Millis(Map{}, "interpolationTime", time.Second)
	if err != nil || d != time.Second {
		t.Errorf("Millis() default = %v, %v", d, err)
	}
	if _, err := Millis(Map{"t": -5}, "t", 0); err == nil {
		t.Error("Millis() expected error for negative value")
	}
}

func TestBoolAndStrings(t *testing.T) {
	p := Map{"a": "true", "b": 0, "c": []any{"x", 2}, "d": "mon, tue ,wed"}
	if !Bool(p, "a", false) || Bool(p, "b", true) || !Bool(p, "missing", true) {
		t.Error("Bool() mis-parsed")
	}
	if got := Strings(p, "c"); len(got) != 2 || got[1] != "2" {
		t.Errorf("Strings(c) = %v", got)
	}
	if got := Strings(p, "d"); len(got) != 3 || got[1] != "tue" {
		t.Errorf("Strings(d) = %v", got)
	}
}

func TestInts(t *testing.T) {
	got, err := Ints(Map{"days": []any{1, float64(3), "5"}}, "days")
	if err != nil || len(got) != 3 || got[2] != 5 {
		t.Errorf("Ints() = %v, %v", got, err)
	}
	if _, err := Ints(Map{"days": []any{"x"}}, "days"); err == nil {
		t.Error("Ints() expected error for non-numeric entry")
	}
}
