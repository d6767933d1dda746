package renderer

import "github.com/vkngwrapper/sponza/internal/logging"

// ToggleDebugView switches the onscreen pass between the composition and
// the G-Buffer overview. Only the onscreen sequences are re-recorded.
func (r *Renderer) ToggleDebugView() error {
	if err := r.idle(); err != nil {
		return err
	}
	r.debugView = !r.debugView
	if err := r.buildGraph(); err != nil {
		return err
	}
	if err := r.recorder.BuildOnscreen(r.graph, r.present); err != nil {
		return err
	}
	r.updateUniforms()
	logging.Logger().Info("debug view", "enabled", r.debugView)
	return nil
}

// ToggleSSAO turns ambient occlusion on or off. The registry is rebuilt
// from scratch and every sequence re-recorded, so toggling twice leaves
// the same variants and passes as before.
func (r *Renderer) ToggleSSAO() error {
	if err := r.idle(); err != nil {
		return err
	}
	r.ssaoEnabled = !r.ssaoEnabled
	r.pipelines.Destroy()
	if err := r.buildPipelines(); err != nil {
		return err
	}
	if err := r.record(); err != nil {
		return err
	}
	r.updateUniforms()
	logging.Logger().Info("ssao", "enabled", r.ssaoEnabled, "passes", len(r.graph.Passes()))
	return nil
}

// ToggleLightsFollowCamera carries the lights along with the eye.
func (r *Renderer) ToggleLightsFollowCamera() {
	r.followCamera = !r.followCamera
	r.updateUniforms()
	logging.Logger().Info("lights follow camera", "enabled", r.followCamera)
}

// ToggleSSAOBlur selects between the blurred and the raw occlusion in the
// composition.
func (r *Renderer) ToggleSSAOBlur() {
	r.ssaoBlurOn = !r.ssaoBlurOn
	r.updateUniforms()
	logging.Logger().Info("ssao blur", "enabled", r.ssaoBlurOn)
}

// ToggleSSAOOnly shows the occlusion term alone.
func (r *Renderer) ToggleSSAOOnly() {
	r.ssaoOnly = !r.ssaoOnly
	r.updateUniforms()
	logging.Logger().Info("ssao only", "enabled", r.ssaoOnly)
}

func (r *Renderer) DebugView() bool          { return r.debugView }
func (r *Renderer) SSAOEnabled() bool        { return r.ssaoEnabled }
func (r *Renderer) SSAOBlur() bool           { return r.ssaoBlurOn }
func (r *Renderer) SSAOOnly() bool           { return r.ssaoOnly }
func (r *Renderer) LightsFollowCamera() bool { return r.followCamera }
