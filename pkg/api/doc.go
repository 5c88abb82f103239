/*
Package api serves the enrollment service over HTTP.

The server is a fiber app. Every /v1 route requires a bearer token issued by
TokenManager (HS256, subject = user id); the subject is the caller identity
passed to the service, so a user can only act on their own enrollments.

# Routes

	POST   /v1/courses/:courseId/enrollment   enroll (201)
	GET    /v1/courses/:courseId/enrollment   current enrollment
	DELETE /v1/courses/:courseId/enrollment   unenroll (204)
	PUT    /v1/courses/:courseId/progress     progress and detail fields
	POST   /v1/courses/:courseId/certificate  issue certificate
	GET    /v1/courses/:courseId/stats        course statistics
	GET    /v1/enrollments?status=A,B         caller's enrollments, newest first
	GET    /v1/enrollments/in-progress        ACTIVE with 0 < progress < 1
	GET    /v1/me/courses                     caller's course index
	GET    /health, /ready, /metrics

# Responses

Bodies use one envelope:

	{"success": true, "data": {...}}
	{"success": false, "error": {"code": "already_enrolled", "message": "..."}}

Error codes come from enrollment.Code. Status mapping:

	not_authenticated          401
	already_enrolled           409
	not_completed              409
	not_enrolled               404
	invalid_argument           400
	conflict, unavailable      503 with Retry-After
*/
package api
