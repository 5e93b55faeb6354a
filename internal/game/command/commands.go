// Package command provides the command registry, parser, and built-in
// combat command definitions.
package command

// Categories for organizing commands.
const (
	CategoryCombat = "combat"
	CategorySystem = "system"
)

// Handler identifiers mapping commands to CombatHandler operations.
const (
	HandlerAttack    = "attack"
	HandlerUse       = "use"
	HandlerFlee      = "flee"
	HandlerAbilities = "abilities"
	HandlerStatus    = "status"
	HandlerLook      = "look"
	HandlerHelp      = "help"
	HandlerQuit      = "quit"
)

// Command defines a player-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument shape, e.g. "use <ability> [target]".
	Usage string
	// Help is the short help text displayed to players.
	Help     string
	Category string
	// Handler names the operation the dispatcher routes to.
	Handler string
	// MinArgs is the number of arguments the command cannot run without.
	MinArgs int
}

// BuiltinCommands returns all built-in commands.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "attack", Aliases: []string{"att", "kill", "k"}, Usage: "attack <target>", Help: "Start or join a fight with a target", Category: CategoryCombat, Handler: HandlerAttack, MinArgs: 1},
		{Name: "use", Aliases: []string{"cast", "u"}, Usage: "use <ability> [target]", Help: "Use an ability on a target, or on your current opponent", Category: CategoryCombat, Handler: HandlerUse, MinArgs: 1},
		{Name: "flee", Aliases: []string{"run"}, Usage: "flee", Help: "Leave your current battle", Category: CategoryCombat, Handler: HandlerFlee},
		{Name: "abilities", Aliases: []string{"ab"}, Usage: "abilities", Help: "List your abilities and their cooldowns", Category: CategoryCombat, Handler: HandlerAbilities},
		{Name: "status", Aliases: []string{"st", "cond"}, Usage: "status", Help: "Show health, resources, and active conditions", Category: CategoryCombat, Handler: HandlerStatus},

		{Name: "look", Aliases: []string{"l"}, Usage: "look", Help: "List who is in the room", Category: CategorySystem, Handler: HandlerLook},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit", "q"}, Usage: "quit", Help: "Leave the game", Category: CategorySystem, Handler: HandlerQuit},
	}
}
