package rainbow

import (
	"gonum.org/v1/gonum/mat"
)

// AttachModel returns a copy of the grid carrying model, which must have
// the same shape as the flux.
func (g *Grid) AttachModel(model *mat.Dense) (*Grid, error) {
	nwave, ntime := g.Shape()
	if err := checkShape("model", model, nwave, ntime); err != nil {
		return nil, err
	}
	return g.derive(g.time, g.wavelength, g.flux, g.uncertainty, model, "attach_model", nil)
}

// HasModel reports whether a model is attached.
func (g *Grid) HasModel() bool { return g.model != nil }

// Model returns a copy of the attached model.
func (g *Grid) Model() (*mat.Dense, error) {
	if g.model == nil {
		return nil, ErrNoModel
	}
	return mat.DenseCopyOf(g.model), nil
}

// Residuals returns flux minus model.
func (g *Grid) Residuals() (*mat.Dense, error) {
	if g.model == nil {
		return nil, ErrNoModel
	}
	var out mat.Dense
	out.Sub(g.flux, g.model)
	return &out, nil
}
