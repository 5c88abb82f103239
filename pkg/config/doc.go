/*
Package config loads enrollcore configuration.

Values are layered, later layers winning:

 1. Built-in defaults (Default)
 2. A YAML file, e.g. enrollcore.yaml
 3. .env files, loaded into the process environment without overriding
    variables that are already set
 4. ENROLLCORE_<SECTION>_<FIELD> environment variables, for example
    ENROLLCORE_STORE_DRIVER or ENROLLCORE_ENROLLMENT_MAX_ATTEMPTS
 5. Validation of the merged result

Example file:

	log:
	  level: info
	store:
	  driver: bolt
	  dataDir: /var/lib/enrollcore
	enrollment:
	  maxAttempts: 5
	  retryBackoff: 20ms
	  unenrollPolicy: cancel
	cache:
	  enabled: true
	  redisURL: redis://localhost:6379/0
	api:
	  addr: ":8080"
	  jwtSecret: change-me-to-something-long
	reconciler:
	  enabled: true
	  schedule: "0 0/15 * * * *"
	  repair: false
*/
package config
