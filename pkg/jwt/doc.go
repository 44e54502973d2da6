// Package jwt issues and verifies HS256 bearer tokens for the billing API.
//
// Tokens carry the user id in the registered "sub" claim and an optional
// "email" claim. Service wraps github.com/golang-jwt/jwt/v5 with a fixed
// signing method, issuer and audience checks and a small clock leeway.
// Middleware extracts the bearer token, verifies it and stores the claims in
// the request context, where UserID and ClaimsFromContext read them.
//
//	svc, err := jwt.New(cfg)
//	if err != nil {
//		return err
//	}
//	r.Group(func(r chi.Router) {
//		r.Use(jwt.Middleware(svc))
//		r.Get("/subscription", handler)
//	})
package jwt
