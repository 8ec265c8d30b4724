// Package joke implements the joke bot: /joke replies with a random joke
// and /add_joke lets one admin add to the list kept in a JSON file.
package joke
