// Package auth decides whether a request carries a usable token.
//
// A request is authenticated in four steps: public path prefixes bypass
// everything; the token is taken from the auth cookie or, failing that, a
// Bearer Authorization header; the token is verified; the revocation store
// is asked whether the token was revoked. Any failure, including an
// unreachable revocation store, is a rejection.
//
// The rejection Reason is for server side diagnostics only. Clients always
// receive the same 401 response.
package auth
