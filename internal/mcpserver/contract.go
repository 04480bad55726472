package mcpserver

// LayoutContract describes how a dataset is laid out across roots so that
// LLM consumers can interpret check reports and failures.
const LayoutContract = `# PFDL Dataset Layout

A dataset is spread over one or more **roots**. A root is an absolute local
directory or an object storage prefix (` + "`s3://bucket/prefix`" + `,
` + "`gs://bucket/prefix`" + `, ` + "`az://container/prefix`" + `).

## Batches

Every immediate child folder of a root is a **batch**. Batches with the same
name in different roots are one logical batch and must carry byte-identical
manifests. Batches are applied in name order; a later batch supersedes the
artifacts of earlier ones with the same name.

` + "```" + `text
/root-a/
  001/
    md5sums.txt
    P1.phenopacket.json
    P1.bam
    P1.bam.bai
  002/
    md5sums.txt
    P1.bam            # supersedes 001/P1.bam
` + "```" + `

## Manifest

Each batch holds ` + "`md5sums.txt`" + ` in ` + "`md5sum`" + ` output format: 32 hex
characters, a space, a mode flag (space or ` + "`*`" + `) and the file name. Every
plain file in the batch must be listed and every listed file must exist.
Sub-directories are not allowed inside a batch.

## Phenopackets

JSON or binary phenopackets (individual or family) reference other artifacts
through ` + "`files[].uri`" + `. A URI must be relative to the dataset: a bare
artifact name or ` + "`file://<name>`" + `. Absolute URIs are rejected.

- Every referenced artifact must exist and not be deleted.
- Every artifact must be referenced by some phenopacket. Companion indexes
  (` + "`.bai`" + `, ` + "`.tbi`" + `) count as referenced with their primary file.
- An individual needs ` + "`subject.id`" + `; a family needs ` + "`id`" + `.
- At most one consentpacket may be attached at each level (family,
  individual, biosample).

## Reports

A passing check reports ` + "`{\"state\":\"data\",\"artifacts\":{...},\"dataset\":{...}}`" + `.
A failing check reports ` + "`{\"state\":\"error\",\"error\":<label>,\"specific\":[...]}`" + `
where each failure carries message, category, root, batch and artifact.
`
