// Package env loads .env files and expands ${VAR} references.
//
// Config files may refer to secrets such as webhook URLs as ${NAME} or
// ${NAME:-fallback}; the values come from the process environment, which a
// .env file can seed without overriding variables that are already set.
package env
