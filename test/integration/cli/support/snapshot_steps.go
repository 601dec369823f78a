package support

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/caffebridge/internal/pipeline"
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/synth"
)

// aGeneratedSnapshotNamed writes a synthetic network with recorded
// activations into the scenario's models directory.
func (testCtx *TestContext) aGeneratedSnapshotNamed(topology, name string) error {
	opts := synth.DefaultOptions()
	if topology == "caffenet" {
		// keep the reference pass quick
		opts.ChannelDivisor = 16
		opts.InputSize = 99
	}
	net, err := synth.Generate(topology, opts)
	if err != nil {
		return err
	}
	return source.Save(testCtx.SnapshotPath(name), net)
}

// updateSnapshot loads, modifies and rewrites a snapshot.
func (testCtx *TestContext) updateSnapshot(name string, fn func(*source.Net) error) error {
	path := testCtx.SnapshotPath(name)
	net, err := source.Load(path)
	if err != nil {
		return err
	}
	if err := fn(net); err != nil {
		return err
	}
	return source.Save(path, net)
}

func findLayer(net *source.Net, name string) (int, error) {
	for i := range net.Layers {
		if net.Layers[i].Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("network %s has no layer %q", net.Name, name)
}

// theRecordedOutputIsPerturbed adds delta to one recorded output value,
// leaving the next layer's recorded input untouched.
func (testCtx *TestContext) theRecordedOutputIsPerturbed(layer, snapshot string, index int, deltaText string) error {
	delta, err := strconv.ParseFloat(deltaText, 32)
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", deltaText, err)
	}
	return testCtx.updateSnapshot(snapshot, func(net *source.Net) error {
		i, err := findLayer(net, layer)
		if err != nil {
			return err
		}
		rec := &net.Layers[i]
		if rec.Top == nil || index >= len(rec.Top.Data) {
			return fmt.Errorf("layer %s has no recorded output value %d", layer, index)
		}
		data := append([]float32(nil), rec.Top.Data...)
		data[index] += float32(delta)
		rec.Top = &source.Blob{Shape: rec.Top.Shape, Data: data}
		return nil
	})
}

// snapshotHasLayerAfter inserts a parameterless layer of the given type
// after another layer.
func (testCtx *TestContext) snapshotHasLayerAfter(snapshot, name, typ, after string) error {
	return testCtx.updateSnapshot(snapshot, func(net *source.Net) error {
		i, err := findLayer(net, after)
		if err != nil {
			return err
		}
		rec := source.LayerRecord{Name: name, Type: typ}
		net.Layers = append(net.Layers[:i+1], append([]source.LayerRecord{rec}, net.Layers[i+1:]...)...)
		return nil
	})
}

// snapshotLayerDeclaresOutputs overrides a convolution or inner product
// num_output, which breaks its recorded shapes.
func (testCtx *TestContext) snapshotLayerDeclaresOutputs(snapshot, layer string, n int) error {
	return testCtx.updateSnapshot(snapshot, func(net *source.Net) error {
		i, err := findLayer(net, layer)
		if err != nil {
			return err
		}
		rec := &net.Layers[i]
		switch {
		case rec.Convolution != nil:
			rec.Convolution.NumOutput = &n
		case rec.InnerProduct != nil:
			rec.InnerProduct.NumOutput = &n
		default:
			return fmt.Errorf("layer %s has no num_output", layer)
		}
		return nil
	})
}

// report decodes the last JSON report.
func (testCtx *TestContext) report() (*pipeline.Report, error) {
	part, err := testCtx.jsonPart()
	if err != nil {
		return nil, err
	}
	var r pipeline.Report
	if err := json.Unmarshal([]byte(part), &r); err != nil {
		return nil, fmt.Errorf("output is not a JSON report: %w", err)
	}
	return &r, nil
}

func (testCtx *TestContext) reportLayer(name string) (*pipeline.LayerResult, error) {
	r, err := testCtx.report()
	if err != nil {
		return nil, err
	}
	for i := range r.Layers {
		if r.Layers[i].Name == name {
			return &r.Layers[i], nil
		}
	}
	return nil, fmt.Errorf("report has no layer %q", name)
}

// layerShouldBe checks a layer's verdict, or its conversion status for
// converted, skipped and failed.
func (testCtx *TestContext) layerShouldBe(name, want string) error {
	l, err := testCtx.reportLayer(name)
	if err != nil {
		return err
	}
	switch want {
	case string(pipeline.StatusConverted), string(pipeline.StatusSkipped), string(pipeline.StatusFailed):
		if string(l.Status) != want {
			return fmt.Errorf("layer %s is %s, want %s", name, l.Status, want)
		}
		return nil
	}
	if l.Verdict == nil {
		return fmt.Errorf("layer %s has no verdict (status %s)", name, l.Status)
	}
	if got := l.Verdict.Status.String(); got != want {
		return fmt.Errorf("layer %s is %s, want %s (%s)", name, got, want, l.Verdict)
	}
	return nil
}

func (testCtx *TestContext) firstOffendingIndexShouldBe(name string, want int) error {
	l, err := testCtx.reportLayer(name)
	if err != nil {
		return err
	}
	if l.Verdict == nil {
		return fmt.Errorf("layer %s has no verdict", name)
	}
	if l.Verdict.Diff.FirstIndex != want {
		return fmt.Errorf("layer %s first offending index is %d, want %d", name, l.Verdict.Diff.FirstIndex, want)
	}
	return nil
}

func (testCtx *TestContext) layerErrorCategoryShouldBe(name, want string) error {
	l, err := testCtx.reportLayer(name)
	if err != nil {
		return err
	}
	if l.ErrorCategory != want {
		return fmt.Errorf("layer %s error category is %q, want %q", name, l.ErrorCategory, want)
	}
	return nil
}

func (testCtx *TestContext) theReportShouldCount(n int, field string) error {
	r, err := testCtx.report()
	if err != nil {
		return err
	}
	counts := map[string]int{
		"converted":  r.Summary.Converted,
		"skipped":    r.Summary.Skipped,
		"failed":     r.Summary.Failed,
		"verified":   r.Summary.Verified,
		"mismatched": r.Summary.Mismatched,
		"exempt":     r.Summary.Exempt,
		"unchecked":  r.Summary.Unchecked,
	}
	got, ok := counts[field]
	if !ok {
		return fmt.Errorf("unknown summary field %q", field)
	}
	if got != n {
		return fmt.Errorf("report counts %d %s layers, want %d", got, field, n)
	}
	return nil
}

func (testCtx *TestContext) everyConvertedLayerShouldBeVerified() error {
	r, err := testCtx.report()
	if err != nil {
		return err
	}
	if r.Summary.Converted == 0 || r.Summary.Verified != r.Summary.Converted {
		return fmt.Errorf("%d of %d converted layers verified, mismatches: %v",
			r.Summary.Verified, r.Summary.Converted, r.Mismatches())
	}
	return nil
}

func (testCtx *TestContext) thePolicyVersionShouldBe(want string) error {
	r, err := testCtx.report()
	if err != nil {
		return err
	}
	if r.PolicyVersion != want {
		return fmt.Errorf("policy version is %q, want %q", r.PolicyVersion, want)
	}
	return nil
}

// RegisterSnapshotSteps registers snapshot setup and report assertions.
func (testCtx *TestContext) RegisterSnapshotSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a generated "([^"]*)" snapshot named "([^"]*)"$`, testCtx.aGeneratedSnapshotNamed)
	sc.Step(`^the recorded output of layer "([^"]*)" in snapshot "([^"]*)" is perturbed at index (\d+) by ([-+0-9.eE]+)$`,
		testCtx.theRecordedOutputIsPerturbed)
	sc.Step(`^snapshot "([^"]*)" has a layer "([^"]*)" of type "([^"]*)" after "([^"]*)"$`, testCtx.snapshotHasLayerAfter)
	sc.Step(`^layer "([^"]*)" in snapshot "([^"]*)" declares (\d+) outputs$`,
		func(layer, snapshot string, n int) error {
			return testCtx.snapshotLayerDeclaresOutputs(snapshot, layer, n)
		})

	sc.Step(`^layer "([^"]*)" should be (\w+)$`, testCtx.layerShouldBe)
	sc.Step(`^the first offending index of layer "([^"]*)" should be (\d+)$`, testCtx.firstOffendingIndexShouldBe)
	sc.Step(`^the error category of layer "([^"]*)" should be "([^"]*)"$`, testCtx.layerErrorCategoryShouldBe)
	sc.Step(`^the report should count (\d+) (\w+) layers?$`, testCtx.theReportShouldCount)
	sc.Step(`^every converted layer should be verified$`, testCtx.everyConvertedLayerShouldBeVerified)
	sc.Step(`^the policy version should be "([^"]*)"$`, testCtx.thePolicyVersionShouldBe)
}
