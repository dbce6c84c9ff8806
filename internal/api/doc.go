// Package api is a typed client for the claims-investigation backend.
//
// Usage:
//
//	client, err := api.New(baseURL, api.WithTokenSource(sess), api.WithTimeout(60*time.Second))
//	claims, err := client.ListClaims(ctx)
//	created, err := client.CreateClaim(ctx, api.CreateClaimRequest{FileCount: 2, AdditionalInfo: "rear bumper"})
//	err = client.Upload(ctx, created.UploadTargets[0], "photo.jpg", f)
//	claim, err := client.TriggerAnalysis(ctx, created.ClaimID)
//
// Authenticated calls read the bearer token from the injected TokenSource on every
// request, so logging in or out through the session is seen by the next call.
// Upload targets are pre-signed; the client never sends the bearer token to them.
package api
