package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posekde/kernel"
	"go.viam.com/posekde/spatialmath"
)

// record is one line of an observation file. A missing orientation means no rotation and a
// missing weight means 1.
type record struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Z      float64  `json:"z"`
	QW     *float64 `json:"qw,omitempty"`
	QX     float64  `json:"qx"`
	QY     float64  `json:"qy"`
	QZ     float64  `json:"qz"`
	Weight *float64 `json:"weight,omitempty"`
	Label  string   `json:"label,omitempty"`
}

type labeledObservation struct {
	kernel.Observation
	Label string
}

func (r record) observation() (labeledObservation, error) {
	q := quat.Number{Real: 1}
	if r.QW != nil {
		q = quat.Number{Real: *r.QW, Imag: r.QX, Jmag: r.QY, Kmag: r.QZ}
	}
	p, err := spatialmath.NewPose(r3.Vector{X: r.X, Y: r.Y, Z: r.Z}, q)
	if err != nil {
		return labeledObservation{}, err
	}
	w := 1.
	if r.Weight != nil {
		w = *r.Weight
	}
	return labeledObservation{kernel.Observation{Pose: p, Weight: w}, r.Label}, nil
}

func newRecord(p spatialmath.Pose, weight float64, label string) record {
	q := p.Orientation()
	return record{
		X: p.Point().X, Y: p.Point().Y, Z: p.Point().Z,
		QW: &q.Real, QX: q.Imag, QY: q.Jmag, QZ: q.Kmag,
		Weight: &weight,
		Label:  label,
	}
}

// readObservations parses JSON lines. Blank lines and lines starting with # are skipped.
func readObservations(r io.Reader) ([]labeledObservation, error) {
	var out []labeledObservation
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		o, err := rec.observation()
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		out = append(out, o)
	}
	return out, scanner.Err()
}

func readObservationFile(path string) ([]labeledObservation, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out, err := readObservations(f)
	return out, errors.Wrapf(err, "reading %s", path)
}

func writeRecords(w io.Writer, records []record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// readConfig decodes a JSON configuration file. Flags given on the command line are merged over it.
func readConfig(path string, overrides map[string]interface{}) (kernel.Config, error) {
	attrs := map[string]interface{}{}
	if path != "" {
		//nolint:gosec
		f, err := os.Open(path)
		if err != nil {
			return kernel.Config{}, err
		}
		defer f.Close()
		// Integers are kept exact; a float64 cannot hold every uint64 seed.
		dec := json.NewDecoder(f)
		dec.UseNumber()
		if err := dec.Decode(&attrs); err != nil {
			return kernel.Config{}, errors.Wrapf(err, "parsing %s", path)
		}
		for k, v := range attrs {
			n, ok := v.(json.Number)
			if !ok {
				continue
			}
			if attrs[k], err = numberValue(n); err != nil {
				return kernel.Config{}, errors.Wrapf(err, "parsing %s: %s", path, k)
			}
		}
	}
	for k, v := range overrides {
		attrs[k] = v
	}
	return kernel.ConfigFromAttributes(attrs)
}

// numberValue converts a JSON number to the narrowest exact Go value: uint64, then int64, then float64.
func numberValue(n json.Number) (interface{}, error) {
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	return n.Float64()
}
