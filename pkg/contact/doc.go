// Package contact implements lead capture for the contact form: input
// validation, persistence in memory or in a SQL database through gorm, and
// the notification and audit side effects of a new submission.
package contact
