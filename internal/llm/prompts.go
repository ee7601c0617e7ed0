package llm

import (
	"fmt"
	"time"
)

// jsonOnlyPreamble forces raw JSON output. Models occasionally wrap JSON in
// markdown fences anyway, so responses are also stripped before decoding.
const jsonOnlyPreamble = "CRITICAL: You MUST output ONLY valid JSON. Do not include any text " +
	"before or after the JSON object. Do not wrap it in markdown code blocks."

func eventExtractionSystemPrompt(topicName, topicDescription, topicCountry, language string, now, publishDate time.Time) string {
	return fmt.Sprintf(`%s

You will be given a markdown-converted webpage by the user that should contain a news article, a blog post, a press release, or a similar piece of substantive content. Note that it may also contain other elements from the webpage that the content was hosted on, such as navigational elements, teasers for other articles, advertisements, etc. If such elements are present, you must ignore them and only focus on the substantive content.
If the substantive content contains information about upcoming events that are relevant to the following topic, you need to extract that information.
Topic name: %s
Topic description: %s
Topic country: %s
When determining the date of an upcoming event, keep in mind that today's date is %s, and that the substantive content you are looking at was published on %s.
All extracted information should be in the following language: %s.
Notice that the point of this task is to help in creating a forward planner with a list of upcoming events relating to the given topic, to be used by e.g. journalists or business analysts.
Therefore, you should only extract information about events that 1. lie in the future, 2. are specific enough to serve as actionable items in a forward planner, and 3. are important enough to be newsworthy.
Examples of events that are sufficiently specific and important:
- The German parliament plans to vote on a new law about combatting hate speech on the 20th of August 2030. (date specific, event specific and important, actionable)
- The next hearing in the criminal case against the owner of the restaurant chain Blockhouse will take place on the 10th of July 2029, at 10:00 AM. (date and time specific, event specific and important, actionable)
- If Sony's board of directors cannot agree on a new CEO by the end of the year, the title will automatically pass to the company's founder. (date specific, event specific and important, actionable)
Examples of events that are NOT sufficiently specific or important:
- The German government plans to install a committee for reviewing recent changes to the criminal code by the end of the year. (date not specific, event somewhat vague, not actionable)
- Some pundits suspect that the French president will issue his resignation at his annual address on the 1st of January next year. (date specific, event important, but mere suspicion that the event might happen is not sufficient)
- The new law is expected to cause rents to go up once it takes effect on the 1st of January 2030. (starting date specific, but this is a broader, long-term development, not a specific event)
- The defendant has until the 20th of July 2031 to decide whether to appeal the verdict. (date specific, but this is merely a deadline, not an actual event)
- KPMG is hosting a seminar on best practices in accounting for students and young professionals. (date specific, event specific, but not important / newsworthy)

Output Format: Your response MUST be ONLY this exact JSON structure with no additional text:
{
  "events": [
    {
      "title": "A clear, concise title or name for the event",
      "description": "A concise description of what the event is about, including key details and context, anywhere from 20 to 200 words",
      "date": "The date (and, if available, time) when the event takes place. If only a date is mentioned, use YYYY-MM-DD. If a date and time are mentioned, use YYYY-MM-DDTHH:MM:SS.",
      "country_code": "ISO 3166-1 alpha-2 code of the country where the event takes place, or null",
      "location": "The geographic location where the event takes place (e.g. 'Berlin, Germany', 'Online', 'Town Hall, 123 Main St'), or null",
      "significance": 0.0,
      "duration": "How long the event lasts, in ISO 8601 duration format (e.g. 'PT1H30M', 'P1D'), or null if no duration is mentioned",
      "additional_infos": [
        {
          "info_name": "The name of an additional piece of information (e.g. 'registration_link', 'reference_number', 'accreditation_deadline')",
          "info_value": "The value of that piece of information"
        }
      ]
    }
  ]
}
"significance" is a numerical weight (0.0 to 1.0) indicating how important this event is, based on: 1. The importance of the event to the topic, 2. The nature of the event (is it a mere deadline that is likely to be extended? An intermediate step in a long process? Or the culmination of a long process, where specific results will be presented / decisions will be made?), 3. The likelihood of the event actually happening.
Only include "additional_infos" entries if: 1. The information is helpful in disambiguating the event from other, similar events pertaining to the same topic, 2. The information is not already covered by any of the other fields, and 3. The information is not about the source where the event was found.
If the page contains no relevant upcoming events, respond with {"events": []}.`,
		jsonOnlyPreamble,
		topicName, topicDescription, topicCountry,
		now.UTC().Format("Monday, 02. of January 2006"),
		publishDate.UTC().Format("Monday, 02. of January 2006"),
		language)
}

func linkExtractionSystemPrompt(topicName, topicDescription, topicCountry string) string {
	return fmt.Sprintf(`%s

You will be given a markdown-converted webpage by the user that should contain a news article, a blog post, a press release, or a similar piece of substantive content. Note that it may also contain other elements from the webpage that the content was hosted on, such as navigational elements, links and teasers for other articles, advertisements, etc. If such elements are present, you must ignore them and only focus on the substantive content.
If there are links to other webpages WITHIN the substantive content that are relevant to the following topic, you need to extract those links (and, if possible, the title and publication date of the linked webpage).
Topic name: %s
Topic description: %s
Topic country: %s

Output Format: Your response MUST be ONLY this exact JSON structure with no additional text:
{
  "sources": [
    {
      "url": "The full URL of the linked webpage",
      "title": "The headline or title of the linked webpage, or null if not determinable",
      "date": "The publication date of the linked webpage in YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS format, or null if not determinable"
    }
  ]
}
If there are no relevant links within the substantive content, respond with {"sources": []}.`,
		jsonOnlyPreamble, topicName, topicDescription, topicCountry)
}

const mergeSystemPrompt = jsonOnlyPreamble + `

You will be given the title and description of two events.
Your response should indicate whether the two events both refer to the same real-world event, just with different wording and possibly different details, or whether they refer to different real-world events.
If they refer to different real-world events, leave the other fields in your response null.
If they refer to the same real-world event, your response should intelligently merge their titles and descriptions into a single title and description.
When merging, try to preserve the most important information from both events.
However, if there is contradictory information, you should prioritize the information from the second event.

Output Format: Your response MUST be ONLY this exact JSON structure with no additional text:
{
  "is_same_event": true,
  "merged_title": "The merged title, or null if the events are different",
  "merged_description": "The merged description, or null if the events are different"
}`

func mergeUserPrompt(title1, desc1, title2, desc2 string) string {
	return fmt.Sprintf(`Title of first event: %s
Description of first event: %s
Title of second event: %s
Description of second event: %s`, title1, desc1, title2, desc2)
}
