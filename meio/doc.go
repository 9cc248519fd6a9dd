// Package meio implements multi-echelon inventory optimization over a
// bill-of-materials network: an exact guaranteed-service-time solver for
// tree networks, a tabu search for general acyclic ones, a Monte-Carlo
// base-stock simulator, and a simulation-gradient optimizer with a
// learning-rate finder.
//
// All entry points take a validated *Network built once via Build. Runs are
// reproducible: the same network, configuration and seed produce bit-for-bit
// identical results, including across parallel replications.
package meio
