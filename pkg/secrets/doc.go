// Package secrets resolves ${secret:name} references in configuration.
//
// Notification credentials such as SMTP passwords, webhook auth headers and
// Slack webhook URLs should not live in the config file. Reference them
// instead:
//
//	notifications:
//	  email:
//	    password: ${secret:smtp-password}
//
// A Resolver asks its providers in order. FileProvider reads one file per
// secret from a directory, the layout Kubernetes uses for mounted secrets,
// and rejects files readable by group or others. EnvProvider maps
// "smtp-password" to METER_SECRET_SMTP_PASSWORD.
//
// Resolved values are cached for a TTL. FileProvider can watch its
// directory with fsnotify and drop cached values when files change.
package secrets
