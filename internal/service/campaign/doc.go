// Package campaign implements campaign lifecycle management.
//
// The service layer contains all business logic for creating,
// approving, scheduling, and completing broadcast campaigns. It
// depends on repository interfaces defined in this package and should
// never import from api/.
//
// Repository implementations live in repository/postgres/.
package campaign
