// Package batch applies one access operation to several usernames.
//
// Tools that take a username accept a single name or a list. Usernames
// normalizes the argument and Apply runs the operation per user, collecting
// a Summary instead of stopping at the first failure.
package batch
