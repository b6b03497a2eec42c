package ai

import (
	"fmt"
	"strings"
)

const extractFoodsPrompt = `Task:
Extract and generate a structured list of all foods and drinks mentioned in the following message: %q. Include quantities and descriptions.

Guidelines:

1. Group appropriately:
   - A "food" can be a complete plate, a single item, or a drink. Place items together if they sound like they accompany each other.
   - Do NOT split ingredients unless the item was clearly consumed separately.
   - Example: "A plate of rice and chicken" stays one item unless specified otherwise.

2. Handle repeated items individually:
   - If an item is mentioned multiple times, list each instance separately.
   - Example: "I had 2 glasses of milk" -> "1 glass of milk", "1 glass of milk".

3. Quantity inclusion:
   - Always include quantities using appropriate units (1 cup, 1 plate, 1 glass, 1 can).
   - If quantity isn't specified, assume 1 serving.
   - Preserve the medium of consumption if it is specified.

4. Assume implied consumption with natural default units:
   - Drinks (milk, juice, water, coffee): 1 cup.
   - Snack foods (chocolate, candy, cookies): 1 piece.
   - Solid foods: 1 serving, 1 plate, or another appropriate unit.

5. Include accompaniments:
   - Sauces or condiments consumed with a meal belong to the main item.
   - Example: "Fries with ketchup" -> "1 serving of fries with ketchup".

Output:
   - Each description must reflect any defaults (e.g. "plain", "no toppings", "black", "unsweetened").
   - Return an empty list when no food or drink was consumed.`

const extractSymptomsPrompt = `Extract all the symptoms from the user's message related to how they might feel physically, mentally, or emotionally. Never list foods or drinks as symptoms. Return an empty list when there are none.`

const extractServingsPrompt = `Identify the number of servings present in the food the user describes. Food groups are: %s.

For every detected food group return its name exactly as spelled in the list above together with the estimated servings as a number (fractions allowed, quarter increments preferred). Omit food groups that are not present. Return an empty list when none are present.`

const imagePromptRefinementPrompt = `You are an expert food photography prompt generator. Create a detailed visual description optimized for AI image generation.

Output structure:
"[Food name], [cooked/raw], [served in/without] [appropriate container if required]. [Exact quantity and visual details]. [Container material and color if used]. [Key visual characteristics]. White background. Centered composition."

Focus purely on visual elements. Respond with the description only.`

const feedbackPrompt = `This is what I consumed today: %s. Please criticize my intake.

Keep your response max 2 sentences. First say something positive. Then give constructive criticism.`

func foodsPrompt(message string) string {
	return fmt.Sprintf(extractFoodsPrompt, message)
}

func servingsPrompt(foodGroups []string) string {
	return fmt.Sprintf(extractServingsPrompt, strings.Join(foodGroups, ", "))
}

// FeedbackPrompt renders the daily feedback request for a list of foods
func FeedbackPrompt(foods []string) string {
	return fmt.Sprintf(feedbackPrompt, strings.Join(foods, ", "))
}

// DefaultImagePrompt is the prompt used when no refinement step runs
func DefaultImagePrompt(food string) string {
	return food + ", white background, centered composition."
}
