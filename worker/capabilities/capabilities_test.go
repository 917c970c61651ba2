package capabilities

import "testing"

func TestCapabilities(t *testing.T) {
	light := DefaultCapabilities("light")
	heavy := DefaultCapabilities("heavy")

	if light.String() != "KB+WASM" {
		t.Errorf("light caps = %s", light)
	}
	if heavy.String() != "KB+WASM+LLM" {
		t.Errorf("heavy caps = %s", heavy)
	}
	if light.CanRun(false, true) {
		t.Error("light worker must not run LLM jobs")
	}
	if !heavy.CanRun(true, true) {
		t.Error("heavy worker should run everything")
	}
	if (Capabilities{UseWASM: true}).CanRun(true, false) {
		t.Error("a worker without KB cannot resolve players")
	}
	if (Capabilities{}).String() != "none" {
		t.Error("empty caps should print none")
	}
}
