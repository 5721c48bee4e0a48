// Package geometry holds the stateless numeric primitives used for cell
// positioning: spherical distance and bearing, the log-distance path-loss
// model, timing-advance ranging, circle intersection, weighted centroids and
// linear and damped least-squares trilateration.
//
// Multi-point solvers work on a local tangent plane centered on their first
// input. At cell ranges (tens of kilometers at most) the flat-earth error is
// well below the ranging error of the inputs.
package geometry
