package dataset

import "github.com/kirillkom/rag-eval/internal/core/domain"

// Medical is the built-in question set used when no dataset file is given.
func Medical() *domain.Dataset {
	return &domain.Dataset{
		Name: "medical-v3",
		Cases: []domain.TestCase{
			{
				ID:          "q1",
				Question:    "What are the main risk factors for type 2 diabetes?",
				GroundTruth: "obesity physical inactivity family history age diet",
				Keywords:    []string{"obesity", "diet", "physical activity", "genetics", "age"},
			},
			{
				ID:          "q2",
				Question:    "How effective are COVID-19 vaccines?",
				GroundTruth: "vaccines highly effective preventing severe disease hospitalization",
				Keywords:    []string{"vaccine", "efficacy", "prevention", "severe", "hospitalization"},
			},
			{
				ID:          "q3",
				Question:    "What is cancer immunotherapy?",
				GroundTruth: "immunotherapy stimulates immune system attack cancer cells",
				Keywords:    []string{"immune", "therapy", "checkpoint", "cells", "treatment"},
			},
			{
				ID:          "q4",
				Question:    "What are the symptoms of hypertension?",
				GroundTruth: "high blood pressure headache dizziness chest pain shortness breath",
				Keywords:    []string{"blood pressure", "headache", "dizziness", "chest pain", "symptoms"},
			},
			{
				ID:          "q5",
				Question:    "How is Alzheimer's disease diagnosed?",
				GroundTruth: "cognitive tests brain imaging memory assessment neurological examination",
				Keywords:    []string{"diagnosis", "cognitive", "test", "imaging", "assessment", "memory"},
			},
			{
				ID:          "q6",
				Question:    "What medications treat hypertension?",
				GroundTruth: "ACE inhibitors diuretics beta blockers calcium channel blockers antihypertensive",
				Keywords:    []string{"medication", "ACE inhibitor", "diuretic", "beta blocker", "treatment", "drug"},
			},
		},
	}
}

// MedicalCorpus is a small reference corpus covering the built-in questions,
// enough to smoke-test both pipelines against an empty collection.
func MedicalCorpus() []domain.Document {
	docs := []struct{ id, source, content string }{
		{"diabetes-risk", "endocrinology", "Risk factors for type 2 diabetes include obesity, physical inactivity, an unhealthy diet, older age and a family history of the disease. Genetics and ethnicity also raise the risk."},
		{"diabetes-prevention", "endocrinology", "Weight loss, regular physical activity and a diet low in refined sugar reduce the chance of developing type 2 diabetes in people with prediabetes."},
		{"covid-vaccine-efficacy", "infectious-disease", "COVID-19 vaccines are highly effective at preventing severe disease, hospitalization and death. Efficacy against infection wanes over time, and boosters restore protection."},
		{"covid-vaccine-safety", "infectious-disease", "Serious adverse events after COVID-19 vaccination are rare. Common side effects are a sore arm, fatigue and a mild fever lasting one or two days."},
		{"immunotherapy-overview", "oncology", "Cancer immunotherapy is a treatment that stimulates the immune system to recognize and attack cancer cells. Checkpoint inhibitors release the brakes on T cells."},
		{"car-t", "oncology", "CAR-T cell therapy engineers a patient's own T cells to target tumour antigens and is approved for several blood cancers."},
		{"hypertension-symptoms", "cardiology", "Hypertension is often silent. When blood pressure is very high, symptoms can include headache, dizziness, chest pain, shortness of breath and nosebleeds."},
		{"hypertension-drugs", "cardiology", "Antihypertensive medication includes ACE inhibitors, diuretics, beta blockers and calcium channel blockers. Treatment is chosen by age, ethnicity and other conditions."},
		{"hypertension-lifestyle", "cardiology", "Reducing salt, losing weight and limiting alcohol lower blood pressure and support drug treatment of hypertension."},
		{"alzheimers-diagnosis", "neurology", "Alzheimer's disease is diagnosed with cognitive tests, a memory assessment, a neurological examination and brain imaging such as MRI or PET."},
		{"alzheimers-biomarkers", "neurology", "Amyloid and tau biomarkers in cerebrospinal fluid or blood support the diagnosis of Alzheimer's disease alongside imaging."},
		{"influenza", "infectious-disease", "Seasonal influenza spreads through respiratory droplets. Annual vaccination reduces illness and complications in older adults."},
	}
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Document{ID: d.id, Content: d.content, Source: d.source})
	}
	return out
}
