// Package chatgpt talks to the ChatGPT web backend on behalf of chat users.
//
// # Overview
//
// The package covers the two stateful, protocol-level concerns of the relay:
// obtaining a bearer credential from the web login surface, and streaming
// conversation turns while tracking per-user continuity.
//
// # Client
//
// The Client owns the HTTP client, the bearer credential, and the session
// store:
//
//	gpt, _ := chatgpt.NewClient(chatgpt.Options{}, logger)
//	gpt.Login(ctx, username, password)   // or gpt.LoginWithToken(token)
//	gpt.SendTurn(ctx, userID, text, onComplete)
//
// Key operations:
//
//   - Login(ctx, username, password): walk the web login flow for a token
//   - LoginWithToken(token): inject a credential directly
//   - IsUserFree(userID): report whether a turn is in flight for the user
//   - SendTurn(ctx, userID, text, onComplete): send one turn and stream the reply
//
// # Login Flow
//
// The backend exposes login as a human browser flow, not an API. Login walks
// it as an explicit state machine, one network round trip per transition:
//
//	Start -> CsrfFetched -> AuthorizeRedirected -> IdentifierPosted
//	      -> CredentialsPosted -> SessionFetched -> Done
//
// The CSRF token and the state/client_id/code_challenge query parameters are
// threaded exactly as received. The redirect chain after the credentials post
// is bounded; a hop carrying an "error" query parameter fails the attempt
// with a DeniedError, and a bad-request status means ErrInvalidCredentials.
//
// # Turn Streaming
//
// A turn request carries action "next", one user message part, the parent
// message ID, and the conversation ID once the backend has assigned one. The
// response is a server-sent-event stream whose fragments repeat the
// cumulative reply text; the assembler keeps the latest snapshot and commits
// continuity fields incrementally as fragments arrive. The literal [DONE]
// sentinel completes the turn.
//
// # Single Flight
//
// At most one turn may be in flight per user. The session store claims a
// user atomically under its mutex; a second concurrent turn for the same
// user gets ErrTurnInFlight. The session is always released when a turn
// settles, including on cancellation and transport failure.
package chatgpt
