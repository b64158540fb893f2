// Package auth guards the transform endpoints of an engine that is
// exposed beyond its cluster.
//
// Authenticators vote on each request: Allow with an identity, Deny, or
// Abstain when the credentials are not theirs to judge. The first vote
// that is not Abstain wins. When everyone abstains the chain either lets
// the request through as anonymous or rejects it.
//
// The identity's tenant scopes the file store references the request
// creates and reads.
package auth
