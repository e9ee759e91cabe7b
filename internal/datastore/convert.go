package datastore

import "github.com/tphakala/audio-annotator/internal/annotation"

func toProject(p Project) annotation.Project {
	return annotation.Project{
		ID:        annotation.ID(p.ID),
		Name:      p.Name,
		ModelType: p.ModelType,
		Labels:    toLabels(p.Labels),
	}
}

func toLabels(rows []Label) []annotation.Label {
	labels := make([]annotation.Label, 0, len(rows))
	for _, l := range rows {
		label := annotation.Label{
			ID:         annotation.ID(l.ID),
			Name:       l.Name,
			Attributes: make([]annotation.Attribute, 0, len(l.Attributes)),
		}
		for _, a := range l.Attributes {
			attr := annotation.Attribute{
				ID:     annotation.ID(a.ID),
				Name:   a.Name,
				Values: make([]annotation.Value, 0, len(a.Values)),
			}
			for _, v := range a.Values {
				attr.Values = append(attr.Values, annotation.Value{ID: annotation.ID(v.ID), Value: v.Value})
			}
			label.Attributes = append(label.Attributes, attr)
		}
		labels = append(labels, label)
	}
	return labels
}

func toTask(t Task) annotation.Task {
	return annotation.Task{
		ID:        annotation.ID(t.ID),
		ProjectID: annotation.ID(t.ProjectID),
		AudioFile: t.AudioFile,
		Status:    annotation.Status(t.Status),
	}
}

func toPersisted(a Annotation) annotation.Persisted {
	p := annotation.Persisted{
		ID: annotation.ID(a.ID),
		Record: annotation.Record{
			StartTime:  a.StartTime,
			EndTime:    a.EndTime,
			Attributes: make([]annotation.AttributeValue, 0, len(a.AttributeValues)),
		},
	}
	if a.LabelID != nil {
		p.LabelID = annotation.ID(*a.LabelID)
	}
	if a.ModelLabel != nil {
		p.ModelLabel = *a.ModelLabel
		p.IsModelGenerated = a.ModelGenerated
	}
	for _, av := range a.AttributeValues {
		p.Attributes = append(p.Attributes, annotation.AttributeValue{
			AttributeID: annotation.ID(av.AttributeID),
			ValueID:     annotation.ID(av.ValueID),
		})
	}
	return p
}
