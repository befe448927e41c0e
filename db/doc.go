/*
Package db opens and manages the SQL handles behind modellr instances.

There are tools for:
- opening postgres (pgx) and sqlite handles from one Config
- authenticating a handle and creating the tables of defined models
- transactions (including rollbacks on error or panic)
- observability and health checks
*/
package db
