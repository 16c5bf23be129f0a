package sqlinline

const QEnsureArtifactsSchema = `--sql 712d3a85-bc37-47e3-beaa-d71beb975d38
create table if not exists artifacts (
  id         uuid primary key,
  user_id    text not null,
  method     jsonb not null,
  created_at timestamptz not null default now()
);
create index if not exists artifacts_user_created_idx on artifacts (user_id, created_at desc);
`

const QInsertArtifact = `--sql 8cedd1c5-ac3f-433c-9f28-5368308fc0cf
insert into artifacts (id, user_id, method, created_at)
values ($1::uuid, $2::text, $3::jsonb, $4::timestamptz);
`

const QListArtifactsByUser = `--sql 71728816-9d59-4471-8187-1ae995c01a7c
select id::text, user_id, method, created_at
from artifacts
where user_id = $1::text
order by created_at desc, id;
`

const QDeleteArtifactsByIDs = `--sql ecfb06da-56bd-4968-a997-2a1feb2d9c47
delete from artifacts
where user_id = $1::text
  and id::text = any($2::text[])
returning id::text;
`

const QDeleteArtifactsForUser = `--sql 379d06b9-3ba7-4439-a3f1-aacb5a75b82d
delete from artifacts
where user_id = $1::text
returning id::text;
`
