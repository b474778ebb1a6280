// Package project computes 2D/3D layouts of embedding matrices for
// visualization.
//
// Two methods are supported, selected by case-insensitive name:
//
//   - "pca": variance-maximizing linear projection via SVD. Reports the
//     fraction of variance each axis explains. Deterministic up to a
//     sign convention, pinned here by forcing the largest-magnitude
//     loading of each axis positive.
//   - "umap": neighborhood-preserving nonlinear layout. A fuzzy k-NN
//     graph (15 neighbors by default) is laid out by seeded stochastic
//     gradient descent, so identical inputs and seeds reproduce
//     identical coordinates.
//
// Sample order is preserved: row i of the projection is sample i of the
// embedding. Axis labels follow the serialized convention pc_1.. and
// umap_1..:
//
//	p, err := project.Project(emb, "umap", 2)
//	if err != nil {
//		return err
//	}
//	xy := p.Row(0) // first sample's coordinates
package project
