package common

// AuthorizationHeaderName carries the bearer access token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// DefaultTemplateVersion is assumed for flows whose template_version is NULL.
const DefaultTemplateVersion = "1.0.0"
