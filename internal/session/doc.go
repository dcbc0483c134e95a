// Package session
// Author: momentics <momentics@gmail.com>
//
// Session identity for wsgate. A session is named by a random token carried in
// the "wssession" cookie; one browser can hold several connections under the
// same token. This package generates tokens, extracts them from Cookie headers
// and tracks which live connections belong to which session.

package session
