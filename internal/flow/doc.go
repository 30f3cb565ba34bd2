// Package flow drives a single interactive authorization attempt through
// an external user agent.
//
// A Session correlates one pending authorization request with the redirect
// that eventually completes it. The Listener catches that redirect on a
// loopback HTTP server, and a Presenter hands the authorization URL to the
// user's browser. The Authorizer ties the three together and enforces that
// at most one attempt is in flight at a time.
package flow
