// Package services defines shared utilities consumed by the preview cache,
// the annotation store and the presentation adapters.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, source image IDs, batch IDs and
//     the authenticated principal for logging and authorization.
//   - Structured error markers plus the Wrap helper so every failure that
//     leaves a component carries a classification (not found, invalid input,
//     decode failure, timeout, storage failure).
//   - Kind and HTTPStatus, which translate those markers into stable labels
//     and user-facing status codes at the boundary.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform.
package services
