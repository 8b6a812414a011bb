package ncut

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShapeMismatch reports parallel structures whose lengths disagree.
	ErrShapeMismatch = errors.New("ncut: shape mismatch")
	// ErrInvalidParams reports a precondition violation in caller parameters.
	ErrInvalidParams = errors.New("ncut: invalid parameters")
)

// InstanceLabels is an N×V matrix of per-view instance ids.
// Zero means unlabeled; ids are only comparable within a view.
type InstanceLabels interface {
	Dims() (points, views int)
	At(point, view int) int
}

// AffinityParams configures BuildAffinity.
type AffinityParams struct {
	ProximityThreshold float64 // Max distance for two points to be linked (meters)
	Beta               float64 // Decay applied to instance disagreement
	Alpha              float64 // Decay applied to physical distance
}

// Validate checks the affinity parameters.
func (p AffinityParams) Validate() error {
	if !(p.ProximityThreshold > 0) {
		return fmt.Errorf("%w: proximity threshold must be positive, got %v", ErrInvalidParams, p.ProximityThreshold)
	}
	if p.Beta < 0 || math.IsNaN(p.Beta) {
		return fmt.Errorf("%w: beta must be non-negative, got %v", ErrInvalidParams, p.Beta)
	}
	if p.Alpha < 0 || math.IsNaN(p.Alpha) {
		return fmt.Errorf("%w: alpha must be non-negative, got %v", ErrInvalidParams, p.Alpha)
	}
	return nil
}

// BuildAffinity combines instance agreement and physical proximity into a
// symmetric affinity matrix. It also returns the 0/1 proximity mask.
//
//	affinity[i,j] = mask[i,j] * exp(-beta*disagreement[i,j]) * exp(-alpha*distance[i,j])
//
// disagreement is the fraction of co-labeled views in which the two
// points carry different ids, or 0 when they are never co-labeled, so
// close but unobserved pairs keep a distance-only affinity. Only pairs
// inside the proximity threshold pay for the view scan.
func BuildAffinity(instances InstanceLabels, distance mat.Symmetric, p AffinityParams) (affinity, proximity *mat.SymDense, err error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	n, views := instances.Dims()
	if distance.SymmetricDim() != n {
		return nil, nil, fmt.Errorf("%w: %d instance rows, %dx%[2]d distance matrix",
			ErrShapeMismatch, n, distance.SymmetricDim())
	}
	if n == 0 {
		return &mat.SymDense{}, &mat.SymDense{}, nil
	}

	affinity = mat.NewSymDense(n, nil)
	proximity = mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := distance.At(i, j)
			if d > p.ProximityThreshold {
				continue
			}
			proximity.SetSym(i, j, 1)

			disagreement := 0.0
			if i != j {
				disagreement = instanceDisagreement(instances, i, j, views)
			}
			affinity.SetSym(i, j, math.Exp(-p.Beta*disagreement)*math.Exp(-p.Alpha*d))
		}
	}

	return affinity, proximity, nil
}

// instanceDisagreement returns the share of views where both points are
// labeled and the labels differ.
func instanceDisagreement(instances InstanceLabels, a, b, views int) float64 {
	coLabeled := 0
	differing := 0
	for v := 0; v < views; v++ {
		ia := instances.At(a, v)
		ib := instances.At(b, v)
		if ia == 0 || ib == 0 {
			continue
		}
		coLabeled++
		if ia != ib {
			differing++
		}
	}
	if coLabeled == 0 {
		return 0
	}
	return float64(differing) / float64(coLabeled)
}
