// Package control implements the proportional-integral smoothing controller
// used by attitude-holding autopilot actions.
//
// The controller is generic over any vector-like quantity that supports
// addition, subtraction and scaling. Scalar and Vec3 are provided.
//
// The controller does not drive an error to zero on its own; it produces a
// smoothed value that converges to the target it is fed:
//
//	err      = target - value
//	integral += err * dt
//	value    = target*P + integral*I
//
// With the default gains (P=0.8, I=0.3) and a constant target the output
// approaches the target monotonically for any dt below 1/I seconds.
package control
