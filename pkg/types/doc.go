// Package types defines the entity types, status machines, sentinel errors,
// and configuration for the SurveyLens collection core: drafts, form and
// instance metadata, and submission queue entries.
package types
