package docs

// LivingDocHeaders holds the initial content written for each living
// document when it doesn't exist yet, keyed by doc type. Grounded on
// cli.py's LIVING_DOC_HEADERS, shared by the project-init command and the
// bootstrap seed path so both sides of document creation agree on the
// schema banner.
var LivingDocHeaders = map[string]string{
	"timeline": "# Timeline\n\n" +
		"Chronological narrative of project evolution. " +
		"References concepts (C###), claims (E###), and workflows (W###) by stable ID.\n",
	"concepts": "# Concept Registry\n\n" +
		"Code concepts keyed by stable ID (C###). " +
		"Status: ACTIVE / DEAD / EVOLVED.\n",
	"epistemic": "# Epistemic State\n\n" +
		"Claims and beliefs keyed by stable ID (E###). " +
		"Status: believed / refuted / contested / unverified.\n",
	"workflows": "# Workflow Registry\n\n" +
		"Process patterns keyed by stable ID (W###). " +
		"Status: CURRENT / SUPERSEDED / MERGED.\n",
}

// GraveyardHeaders holds the initial content for the two graveyard files.
// Grounded on cli.py's GRAVEYARD_HEADERS.
var GraveyardHeaders = map[string]string{
	"concepts": "# Concept Graveyard\n\n" +
		"Append-only archive of DEAD and EVOLVED concept entries. " +
		"Keyed by stable ID (C###).\n",
	"epistemic": "# Epistemic Graveyard\n\n" +
		"Append-only archive of refuted claims. " +
		"Keyed by stable ID (E###).\n",
}
