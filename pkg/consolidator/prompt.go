package consolidator

import (
	"fmt"
	"strings"
)

// Prompts are French, matching the production LLMaaS deployment. The
// JSON structure demanded here must stay in sync with Plan in json.go.

const systemPrompt = `Tu es un assistant spécialisé dans la maintenance de Memory Banks pour des projets.

Ta mission : synthétiser des notes de travail en fichiers structurés selon des règles précises.

Tu reçois :
1. Les RULES qui définissent la structure de la memory bank
2. La SYNTHÈSE PRÉCÉDENTE (contexte des consolidations antérieures)
3. Les NOTES LIVE nouvelles à intégrer
4. Les FICHIERS BANK actuels à mettre à jour

Tu dois retourner un JSON avec :
- "bank_files" : liste des fichiers bank mis à jour ou créés
- "synthesis" : synthèse résiduelle des notes traitées

Règles :
- Respecte STRICTEMENT la structure définie dans les rules
- Intègre les nouvelles informations des notes live
- Conserve les informations existantes qui sont toujours pertinentes
- Supprime les informations rendues obsolètes par les nouvelles notes
- Chaque fichier bank doit être en Markdown pur (pas de front-matter)
- La synthèse doit être concise mais couvrir les points clés
- Si un fichier bank n'a pas besoin de modification, NE L'INCLUS PAS dans bank_files`

const instructions = `Retourne un JSON avec cette structure exacte :
{
  "bank_files": [
    {
      "filename": "nom_du_fichier.md",
      "content": "contenu complet du fichier en Markdown",
      "action": "created" ou "updated"
    }
  ],
  "synthesis": "Contenu Markdown de la synthèse résiduelle"
}

IMPORTANT :
- N'inclus QUE les fichiers qui ont été modifiés ou créés
- Les fichiers inchangés NE DOIVENT PAS apparaître dans bank_files
- La synthèse résiduelle doit résumer les notes traitées
- Le contenu des fichiers bank doit être du Markdown pur`

const retryInstruction = "Ta réponse n'est pas du JSON valide. Retourne UNIQUEMENT un objet JSON valide."

const noSynthesis = "Aucune — première consolidation"

const noBankFiles = "Aucun fichier bank — première consolidation, créer les fichiers selon les rules."

// bankFile is one current bank file fed to the prompt.
type bankFile struct {
	Name    string
	Content string
}

// buildUserPrompt assembles the user message: rules, previous synthesis,
// the notes to fold in (raw, front matter included) and the current bank
// files verbatim.
func buildUserPrompt(spaceID, rules, synthesis string, notes []string, bank []bankFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== RULES DE L'ESPACE \"%s\" ===\n%s\n\n", spaceID, rules)

	if synthesis == "" {
		synthesis = noSynthesis
	}
	fmt.Fprintf(&b, "=== SYNTHÈSE PRÉCÉDENTE ===\n%s\n\n", synthesis)

	fmt.Fprintf(&b, "=== NOTES LIVE À INTÉGRER (%d notes) ===\n", len(notes))
	for i, content := range notes {
		fmt.Fprintf(&b, "\n--- Note %d/%d ---\n%s\n", i+1, len(notes), content)
	}

	b.WriteString("\n=== FICHIERS BANK ACTUELS ===\n")
	if len(bank) == 0 {
		b.WriteString(noBankFiles + "\n")
	} else {
		for _, f := range bank {
			fmt.Fprintf(&b, "\n--- Fichier: %s ---\n%s\n--- Fin fichier: %s ---\n", f.Name, f.Content, f.Name)
		}
	}

	b.WriteString("\n=== CONSIGNES ===\n")
	b.WriteString(instructions)

	return b.String()
}
