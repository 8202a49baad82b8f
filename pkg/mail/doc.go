// Package mail sends the lead notification and confirmation e-mails over SMTP.
// Messages go through an asynchronous, throttled Queue with exponential
// backoff so that a slow or unavailable mail server never delays a request.
package mail
