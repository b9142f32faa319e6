// Package fork decides which fork a run may use and makes sure it exists.
//
// A provider account holds at most one fork per fork network. RootResolver
// finds the network root of a repository, ConflictDetector refuses targets
// whose fork slot is already taken by a different repository, and
// Provisioner creates or reuses the fork while other workers may be doing
// the same thing.
//
// Provisioner treats "somebody else created it" as success, retries
// transient provider failures on an exponential schedule, initializes an
// empty source repository once, and only returns a fork it has read back
// from the provider.
package fork
