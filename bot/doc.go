// Package bot holds the Discord plumbing shared by the entry and joke bots.
//
// A [Bot] owns one discordgo session, registers its slash commands when the
// gateway reports Ready, and dispatches interactions and messages to the
// handlers added with [Bot.AddCommand] and [Bot.OnMessage]. Events are
// handled one at a time on the gateway goroutine, so a handler that reads,
// mutates and persists state finishes before the next event is seen.
//
// Other pieces:
//
//   - SessionHandler: the subset of *discordgo.Session the bots use, so tests
//     can swap in a fake.
//   - InteractionHandler: per-interaction respond/edit helpers.
//   - Notifier: best-effort direct messages whose failures never reach the
//     caller.
//   - API: optional read-only status endpoints served with gin.
//   - ReadJSONFile/WriteJSONFile: whole-document JSON persistence.
package bot
