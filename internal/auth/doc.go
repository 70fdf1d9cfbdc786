// Package auth provides bearer-token authorisation for the tag registry API.
//
// Tokens are HS256 JWTs carrying a subject and a role. The role maps to a
// static permission set:
//   - viewer: read devices and tags
//   - editor: viewer plus tag import, edit and removal
//   - admin: editor plus device creation and deletion
//
// There is no user store. Tokens are issued out of band with
// GenerateAccessToken (the "tagregistry token" command) and validated by
// signature only.
package auth
