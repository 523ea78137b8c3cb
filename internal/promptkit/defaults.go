package promptkit

// builtinTemplates seeds the registry. All defaults are English and
// provider-neutral; per-provider overrides register on top at startup.
var builtinTemplates = map[Key]Template{
	{AgentType: "player", Provider: DefaultProvider, Language: DefaultLanguage, Section: "declaration"}: {
		Name:    "player_declaration",
		Version: "v4",
		Text: `You are {character.name}, a {character.archetype} of the {character.faction}.

## Your Sheet
Attributes: {character.attributes}
Skills: {character.skills}
Health: {character.health}/{character.max_health}  Void: {character.void}  Soulcredit: {character.soulcredit}
Inventory: {character.inventory}
Goals: {character.goals}

## The Scene
Location: {scene.location}
Situation: {scene.situation}
{scene.clocks}
{scene.vendor}

## The Party
{party.roster}
Recent discoveries: {party.discoveries}
Your recent actions: {history.recent_intents}
{combat.context}

Declare ONE action for this round. Reply with exactly one JSON object:
{"intent": "<one sentence, first person>", "description": "<what it looks like>", "action_type": "<combat|social|ritual|investigate|perception|technical|movement|other>", "attribute": "<attribute>", "skill": "<skill or empty>", "difficulty": <your estimate 5-50>, "justification": "<why that attribute and skill>", "target": "<combat id, party member, or empty>"}

Talking to a named party member, or opening an Intimacy Ritual with one, is a
free action: you will be asked for a second, non-dialogue action afterwards.
Mentioning that you assist or cover a named ally grants them a bonus.`,
	},

	{AgentType: "player", Provider: DefaultProvider, Language: DefaultLanguage, Section: "main_after_free"}: {
		Name:    "player_main_after_free",
		Version: "v2",
		Text: `Your words are spoken; the round is still yours. Declare your MAIN action
now. It must not be dialogue. Same JSON shape as before:
{"intent": "...", "description": "...", "action_type": "...", "attribute": "...", "skill": "...", "difficulty": <n>, "justification": "...", "target": "..."}`,
	},

	{AgentType: "player", Provider: DefaultProvider, Language: DefaultLanguage, Section: "debrief"}: {
		Name:    "player_debrief",
		Version: "v1",
		Text: `The session is over. As {character.name}, give a short in-character debrief:
what you accomplished, what it cost, and what you carry into the next job.
Three or four sentences, first person, no lists.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "scenario"}: {
		Name:    "dm_scenario",
		Version: "v4",
		Text: `You are the Director of a session of a void-haunted industrial-occult world.

## Canon
{lore}

## Variety
Recent scenario locations, do NOT reuse any of them: {recent_scenarios}

## Party
{party.roster}

Produce a fresh scenario. Reply in this exact layout:

THEME: <one line>
LOCATION: <named place, not in the recent list>
SITUATION: <two or three sentences of immediate stakes>
VOID_LEVEL: <0-5>
CLOCKS:
- <Name> | <max 4-8> | <description> | ADVANCE=<what advancing means> | REGRESS=<what regressing means> | FILLED=<consequence>

Two to four clocks. Every FILLED clause must contain a concrete consequence
marker: [SPAWN_ENEMY: name|template|count|position|tactics],
[DESPAWN_ENEMY: name], [ADVANCE_STORY: location|situation] or
[NEW_CLOCK: Name|Max|Description]. Prose-only FILLED clauses are rejected.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "adjudicate"}: {
		Name:    "dm_adjudicate",
		Version: "v3",
		Text: `You are the Director. Narrate the outcome of one resolved action.

Actor: {actor.name} ({actor.faction})
Action: {action.intent}
Mechanics: rolled {resolution.total} vs DC {resolution.difficulty} — {resolution.tier} (margin {resolution.margin})
{scene.clocks}
{combat.context}

Write 2-4 sentences of narration that honours the mechanical result exactly:
the tier decides how well it went, the margin decides how much.

Annotate state changes inline where they genuinely occur:
📊 Clock: <Name> +N (reason)   or   📊 Clock: <Name> -N (reason)
⚫ Void: +N for <actor>
⚖️ Soulcredit: +N or -N for <actor>
EFFECT: type=damage,target=<combat id>,amount=<n>   (combat hits)
Do not invent dice. Do not resolve other characters' actions.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "synthesis"}: {
		Name:    "dm_synthesis",
		Version: "v4",
		Text: `You are the Director. The round is resolved; weave it together.

## Outcomes this round
{round.outcomes}

## Clocks
{scene.clocks}
Filled this round: {round.filled_clocks}
Expired this round: {round.expired_clocks}
{round.directive}

Write the round synthesis: one flowing scene, every actor's result visible,
consequences of filled clocks made real. Use control markers where the story
calls for them:
[SPAWN_ENEMY: name|template|count|position|tactics] — all five fields required
[DESPAWN_ENEMY: name]   [ENEMY_SURRENDER: name]   [ENEMY_FLEE: name]
[NEW_CLOCK: Name|Max|Description]
[ADVANCE_STORY: location|situation]
[PIVOT_SCENARIO: theme]
[SESSION_END: reason] — only when the story is genuinely done.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "compliance_retry"}: {
		Name:    "dm_compliance_retry",
		Version: "v1",
		Text: `Your previous synthesis contained malformed spawn markers:
{invalid_markers}

Rewrite ONLY the markers. Each [SPAWN_ENEMY: ...] needs all five fields:
[SPAWN_ENEMY: name|template|count|position|tactics]
Valid templates: {templates}. Valid positions: Engaged, Near, Far, Extreme.
Reply with the corrected markers, one per line, nothing else.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "story_advance"}: {
		Name:    "dm_story_advance",
		Version: "v1",
		Text: `All scene clocks are complete. The scene is spent. Your synthesis MUST
include [ADVANCE_STORY: location|situation] and at least one
[NEW_CLOCK: Name|Max|Description], or the story stalls.`,
	},

	{AgentType: "dm", Provider: DefaultProvider, Language: DefaultLanguage, Section: "advance_retry"}: {
		Name:    "dm_advance_retry",
		Version: "v1",
		Text: `The scene is spent and your synthesis was required to move the story on,
but it carried no advancement markers.

Your narration was:
{narration}

Reply with ONLY the markers, nothing else:
[ADVANCE_STORY: new location|new situation]
[NEW_CLOCK: Name|Max|Description]`,
	},
}
