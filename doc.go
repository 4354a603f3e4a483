// Package placebot keeps a shared, remotely hosted pixel canvas in line with a target image.
//
// The canvas service hands out one pixel per account per cooldown period. A Scheduler
// repeatedly fetches a canvas snapshot over the realtime (websocket) endpoint, picks the
// first target pixel that does not yet carry the fill color, submits it through the GraphQL
// mutation endpoint, and sleeps until the server-reported "next available pixel" timestamp
// plus a safety buffer.
//
// Features
//   - Bearer token authentication read once from a single-line token file
//   - Target images in PNG, JPEG, GIF, BMP, TIFF or WebP, alpha composited onto white
//   - Paletted and true-color canvas snapshots (nearest palette entry in CIE Lab)
//   - Bounded snapshot wait with a distinct timeout error
//   - Cooldown-aware scheduling with explicit accepted / still-on-cooldown / protocol-error outcomes
//   - Optional Redis pub/sub notifications for every placed pixel
//
// Logging is silent by default; call SetLogger to enable it.
package placebot
