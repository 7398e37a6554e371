// Package rainbow owns the time-wavelength flux grid ("rainbow").
//
// A Grid binds a (nwave, ntime) flux array and a matching uncertainty array
// to a time axis (stored in days) and a wavelength axis (microns). Grids
// are immutable once built: every action returns a new Grid and every
// accessor returns a copy, so a Grid may be read from many goroutines.
//
// Exports (ToTable, ToArrays) flatten the grid row-major over
// (wavelength, time): row i holds wavelength index i/ntime and time index
// i%ntime.
//
// No SQL, plotting or file IO lives in this package.
package rainbow
