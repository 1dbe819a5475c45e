// Package geometry provides the plane geometry used to rectify answer sheets
// and to map the canonical bubble template onto a rectified image.
//
// # Transforms
//
// Two transform families are supported:
//   - Homography: full 8-degree-of-freedom perspective transform, solved from
//     exactly four point correspondences. Used by the sheet normalizer to undo
//     camera keystone and rotation.
//   - Affine: 6-degree-of-freedom transform, fitted by least squares from three
//     or more correspondences. Used by the grid locator to absorb the small
//     residual shift, scale and shear left after rectification.
//
// Both are solved with gonum's dense linear algebra.
//
// # Coordinate System
//
// Points use float64 pixel coordinates with the image convention: origin at
// the top-left, X to the right, Y downward. Pixel centres sit at integer
// coordinates.
package geometry
