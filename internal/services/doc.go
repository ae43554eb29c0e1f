// Package services wraps the external systems the engine talks to.
//
// # Identity and storage
//
// [IdentityClient], [AuthFlow], [Session], [SessionStorage] and [PublicStorage] model the identity network's client.
// [HomeserverClient] implements them over plain HTTP. A session credential is a public key, the homeserver base URL
// and a bearer token; it travels through [golang.org/x/oauth2] so every storage request is authorised the same way.
//
// Approval works like an OAuth callback. StartAuthFlow opens a one-shot local listener and returns a
// pubkyauth:///?caps=..&secret=..&relay=.. URL. The signer posts the credential back to the relay, tagged with
// the secret, and AwaitApproval turns it into a [Session].
//
// # Social index
//
// [NexusService] is a rate limited client for the indexer's user, search and stream endpoints. A profile that
// the indexer does not know yet is reported as [shared.ErrProfileNotIndexed].
package services
